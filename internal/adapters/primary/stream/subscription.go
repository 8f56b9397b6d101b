package stream

import (
	"sync"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// Delivery is one item taken off a subscription queue. Resync marks the
// point where events were lost and the viewer has to refetch state.
type Delivery struct {
	Event  domain.Event
	Resync bool
}

// Subscription is one connected viewer's bounded outbound queue.
type Subscription struct {
	ID     string
	Viewer domain.Actor

	mu      sync.Mutex
	items   []domain.Event
	size    int
	resync  bool
	dropped uint64
	closed  bool

	ready chan struct{}
	done  chan struct{}
}

func newSubscription(id string, viewer domain.Actor, size int) *Subscription {
	return &Subscription{
		ID:     id,
		Viewer: viewer,
		items:  make([]domain.Event, 0, size),
		size:   size,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Ready fires when items are waiting to be drained.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Done is closed once the subscription is removed from the hub.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Dropped counts events discarded on overflow.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Len is the number of queued events.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Drain empties the queue. A pending resync marker comes first.
func (s *Subscription) Drain() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Delivery, 0, len(s.items)+1)
	if s.resync {
		out = append(out, Delivery{Resync: true})
		s.resync = false
	}
	for _, e := range s.items {
		out = append(out, Delivery{Event: e})
	}
	s.items = s.items[:0]
	return out
}

// enqueue never blocks. When the queue is full the oldest event is dropped
// and a resync is requested; it reports whether that happened.
func (s *Subscription) enqueue(e domain.Event) (overflowed bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if len(s.items) >= s.size {
		copy(s.items, s.items[1:])
		s.items = s.items[:len(s.items)-1]
		s.dropped++
		s.resync = true
		overflowed = true
	}
	s.items = append(s.items, e)
	s.mu.Unlock()

	s.signal()
	return overflowed
}

// requestResync queues a resync marker without an event.
func (s *Subscription) requestResync() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.resync = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.items = nil
	close(s.done)
}
