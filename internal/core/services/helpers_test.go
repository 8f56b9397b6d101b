package services_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staff(role domain.Role, name string) domain.Actor {
	return domain.Actor{ID: uuid.New(), Role: role, Name: name}
}

// memTicketRepo is an in-memory TicketRepository with the same optimistic
// version check as the postgres adapter.
type memTicketRepo struct {
	mu       sync.Mutex
	tickets  map[uuid.UUID]*domain.SupportTicket
	messages []*domain.TicketMessage
}

func newMemTicketRepo(tickets ...*domain.SupportTicket) *memTicketRepo {
	r := &memTicketRepo{tickets: make(map[uuid.UUID]*domain.SupportTicket)}
	for _, t := range tickets {
		r.tickets[t.ID] = t.Clone()
	}
	return r
}

func (r *memTicketRepo) Create(_ context.Context, t *domain.SupportTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[t.ID] = t.Clone()
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.SupportTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (r *memTicketRepo) Update(_ context.Context, t *domain.SupportTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.tickets[t.ID]
	if !ok {
		return apperrors.ErrTicketNotFound
	}
	if current.Version != t.Version-1 {
		return apperrors.ErrConcurrentUpdate
	}
	r.tickets[t.ID] = t.Clone()
	return nil
}

func (r *memTicketRepo) List(_ context.Context, params ports.ListTicketsParams) ([]*domain.SupportTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SupportTicket
	for _, t := range r.tickets {
		if params.VisibleTo != nil && t.Locked && !t.IsAssignedTo(*params.VisibleTo) {
			continue
		}
		out = append(out, t.Clone())
	}
	return out, nil
}

func (r *memTicketRepo) AddMessage(_ context.Context, msg *domain.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := *msg
	r.messages = append(r.messages, &m)
	return nil
}

func (r *memTicketRepo) ListMessages(_ context.Context, ids []uuid.UUID) ([]*domain.TicketMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*domain.TicketMessage
	for _, m := range r.messages {
		if want[m.TicketID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memTicketRepo) stored(id uuid.UUID) *domain.SupportTicket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickets[id].Clone()
}

// recordingBroadcaster keeps every broadcast event in order.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, e domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBroadcaster) kinds() []domain.EventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventKind, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Kind())
	}
	return out
}

func (b *recordingBroadcaster) all() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.events...)
}

func openTicket() *domain.SupportTicket {
	t, err := domain.NewSupportTicket(domain.TicketParams{
		Subject:  "Payment failed",
		Email:    "customer@example.com",
		Category: domain.CategoryPayment,
		Priority: domain.TicketPriorityHigh,
	}, fixedNow)
	if err != nil {
		panic(err)
	}
	return t
}
