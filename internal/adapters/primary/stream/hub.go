package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/idgen"
)

// DefaultQueueSize is the per-viewer queue capacity.
const DefaultQueueSize = 256

// ErrHubStopped is returned by Broadcast once Run has returned.
var ErrHubStopped = errors.New("stream hub stopped")

// Hub fans every produced event out to the viewers allowed to see it. It
// keeps no entity state.
type Hub struct {
	// subs is the set of connected viewers
	subs map[*Subscription]struct{}
	mu   sync.RWMutex

	// broadcast hands events to the Run loop; it is unbuffered so that
	// Broadcast returns only once the event is in the fan-out order.
	broadcast chan domain.Event

	queueSize int
	stopOnce  sync.Once
	stopped   chan struct{}
	logger    *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a hub. A non-positive queueSize uses DefaultQueueSize.
func NewHub(queueSize int, logger *slog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:      make(map[*Subscription]struct{}),
		broadcast: make(chan domain.Event),
		queueSize: queueSize,
		stopped:   make(chan struct{}),
		logger:    logger.With("component", "stream_hub"),
	}
}

// Subscribe registers a viewer and returns its queue.
func (h *Hub) Subscribe(viewer domain.Actor) *Subscription {
	sub := newSubscription(idgen.SessionID(), viewer, h.queueSize)

	h.mu.Lock()
	select {
	case <-h.stopped:
		h.mu.Unlock()
		sub.close()
		return sub
	default:
	}
	h.subs[sub] = struct{}{}
	total := len(h.subs)
	h.mu.Unlock()

	h.logger.Info("viewer subscribed",
		"session_id", sub.ID,
		"user_id", viewer.ID,
		"role", viewer.Role,
		"total_connections", total,
	)
	return sub
}

// Unsubscribe removes the viewer. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()

	sub.close()
	if ok {
		h.logger.Info("viewer unsubscribed",
			"session_id", sub.ID,
			"user_id", sub.Viewer.ID,
			"dropped", sub.Dropped(),
		)
	}
}

// ConnectedViewers returns the number of live subscriptions.
func (h *Hub) ConnectedViewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast hands the event to the fan-out loop.
func (h *Hub) Broadcast(ctx context.Context, event domain.Event) error {
	select {
	case h.broadcast <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrHubStopped
	}
}

// RequestResync asks every connected viewer to refetch state, e.g. after the
// upstream event relay reconnected and may have missed messages.
func (h *Hub) RequestResync() {
	for _, sub := range h.snapshot() {
		sub.requestResync()
	}
}

// Run is the single fan-out loop. It returns when ctx is done, closing every
// subscription.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.broadcast:
			h.fanOut(event)
		}
	}
}

func (h *Hub) fanOut(event domain.Event) {
	subs := h.snapshot()

	delivered := 0
	for _, sub := range subs {
		if !domain.Visible(event, sub.Viewer) {
			continue
		}
		delivered++
		if sub.enqueue(event) {
			h.logger.Warn("viewer queue full, dropped oldest event",
				"session_id", sub.ID,
				"user_id", sub.Viewer.ID,
				"dropped", sub.Dropped(),
			)
		}
	}

	h.logger.Debug("event fanned out",
		"event_id", event.ID,
		"kind", event.Kind(),
		"viewers", delivered,
	)
}

func (h *Hub) snapshot() []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		close(h.stopped)
		subs := h.subs
		h.subs = make(map[*Subscription]struct{})
		h.mu.Unlock()

		for sub := range subs {
			sub.close()
		}
		h.logger.Info("stream hub stopped", "closed_connections", len(subs))
	})
}
