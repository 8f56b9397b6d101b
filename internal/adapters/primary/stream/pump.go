package stream

import (
	"context"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// DefaultHeartbeat is the ping interval: a third of the client's default
// staleness timeout.
const DefaultHeartbeat = 20 * time.Second

// FrameSink receives the frames of one connection.
type FrameSink interface {
	WriteFrame(f domain.Frame) error
}

// Pump copies a subscription to sink until ctx ends, the subscription is
// closed, or a write fails. It sends a ping every heartbeat interval.
func Pump(ctx context.Context, sub *Subscription, heartbeat time.Duration, sink FrameSink) error {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done():
			return ErrHubStopped
		case <-ticker.C:
			if err := sink.WriteFrame(PingFrame(time.Now().UTC())); err != nil {
				return err
			}
		case <-sub.Ready():
			for _, d := range sub.Drain() {
				f, err := deliveryFrame(d)
				if err != nil {
					// An event that cannot be encoded is a lost event.
					f = ResyncFrame("encode", time.Now().UTC())
				}
				if err := sink.WriteFrame(f); err != nil {
					return err
				}
			}
		}
	}
}

func deliveryFrame(d Delivery) (domain.Frame, error) {
	if d.Resync {
		return ResyncFrame("overflow", time.Now().UTC()), nil
	}
	return domain.EventFrame(d.Event)
}
