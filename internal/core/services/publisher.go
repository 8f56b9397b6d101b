package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/idgen"
)

// publisher stamps payloads into envelopes and hands them to the broadcaster.
// Broadcasting is synchronous so events leave in the order their changes
// were committed.
type publisher struct {
	broadcaster ports.EventBroadcaster
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

func newPublisher(broadcaster ports.EventBroadcaster, logger *slog.Logger) publisher {
	return publisher{
		broadcaster: broadcaster,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       idgen.EventID,
	}
}

// publish never fails the caller: the change is already committed, and
// clients recover missed events through resync.
func (p publisher) publish(ctx context.Context, payload domain.Payload) {
	if p.broadcaster == nil {
		return
	}
	event := domain.NewEvent(p.newID(), payload, p.now())
	if err := p.broadcaster.Broadcast(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to broadcast event",
			"event_id", event.ID,
			"kind", event.Kind(),
			"entity_id", payload.EntityID(),
			"error", err,
		)
	}
}
