// Package tickets keeps the client's cache of support tickets and applies
// lock operations optimistically. The server holds the authoritative lock.
package tickets

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// Coordinator is safe for concurrent use. Network calls run without the lock
// held.
type Coordinator struct {
	actor      domain.Actor
	actions    ports.TicketActions
	onConflict func(Conflict)
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	tickets  map[uuid.UUID]*domain.SupportTicket
	messages map[uuid.UUID][]domain.TicketMessage
	intents  map[uuid.UUID]*intent
	closed   bool

	life   context.Context
	cancel context.CancelFunc
}

// NewCoordinator creates an empty cache for actor. onConflict may be nil.
func NewCoordinator(actor domain.Actor, actions ports.TicketActions, onConflict func(Conflict), logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	life, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		actor:      actor,
		actions:    actions,
		onConflict: onConflict,
		logger:     logger.With("component", "ticket_coordinator"),
		now:        time.Now,
		tickets:    make(map[uuid.UUID]*domain.SupportTicket),
		messages:   make(map[uuid.UUID][]domain.TicketMessage),
		intents:    make(map[uuid.UUID]*intent),
		life:       life,
		cancel:     cancel,
	}
}

// Assign takes the lock for the session's actor.
func (c *Coordinator) Assign(ctx context.Context, id uuid.UUID) (*domain.SupportTicket, error) {
	return c.act(ctx, id, ActionAssign, func(t *domain.SupportTicket, now time.Time) error {
		_, err := t.Assign(c.actor, now)
		return err
	}, func(ctx context.Context) (*domain.SupportTicket, error) {
		return c.actions.Assign(ctx, id)
	})
}

// Unassign releases the lock.
func (c *Coordinator) Unassign(ctx context.Context, id uuid.UUID) (*domain.SupportTicket, error) {
	return c.act(ctx, id, ActionUnassign, func(t *domain.SupportTicket, now time.Time) error {
		_, err := t.Unassign(c.actor, now)
		return err
	}, func(ctx context.Context) (*domain.SupportTicket, error) {
		return c.actions.Unassign(ctx, id)
	})
}

// Resolve marks the ticket resolved. The lock is kept.
func (c *Coordinator) Resolve(ctx context.Context, id uuid.UUID) (*domain.SupportTicket, error) {
	return c.act(ctx, id, ActionResolve, func(t *domain.SupportTicket, now time.Time) error {
		return t.Resolve(c.actor, now)
	}, func(ctx context.Context) (*domain.SupportTicket, error) {
		return c.actions.Resolve(ctx, id)
	})
}

// Close marks the ticket closed.
func (c *Coordinator) Close(ctx context.Context, id uuid.UUID) (*domain.SupportTicket, error) {
	return c.act(ctx, id, ActionClose, func(t *domain.SupportTicket, now time.Time) error {
		_, err := t.Close(c.actor, now)
		return err
	}, func(ctx context.Context) (*domain.SupportTicket, error) {
		return c.actions.Close(ctx, id)
	})
}

type (
	mutation func(t *domain.SupportTicket, now time.Time) error
	call     func(ctx context.Context) (*domain.SupportTicket, error)
)

func (c *Coordinator) act(ctx context.Context, id uuid.UUID, action Action, mutate mutation, remote call) (*domain.SupportTicket, error) {
	c.mu.Lock()
	current, err := c.current(id)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	next := current.Clone()
	if err := mutate(next, c.now().UTC()); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if next.Version == current.Version {
		// Assigning a ticket we already hold changes nothing.
		c.mu.Unlock()
		return next, nil
	}
	in := &intent{action: action, prior: current.Clone(), version: next.Version}
	c.intents[id] = in
	c.tickets[id] = next
	c.mu.Unlock()

	callCtx, done := c.actionContext(ctx)
	result, err := remote(callCtx)
	done()

	return c.finish(id, in, result, err)
}

// Reply posts a staff message. The message shows up locally right away.
func (c *Coordinator) Reply(ctx context.Context, id uuid.UUID, content string) (*domain.TicketMessage, error) {
	c.mu.Lock()
	current, err := c.current(id)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	next := current.Clone()
	msg, err := next.Reply(c.actor, content, c.now().UTC())
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	in := &intent{action: ActionReply, prior: current.Clone(), version: next.Version, message: &msg}
	c.intents[id] = in
	c.tickets[id] = next
	c.addMessage(msg)
	c.mu.Unlock()

	callCtx, done := c.actionContext(ctx)
	ticket, serverMsg, err := c.actions.Reply(callCtx, id, content)
	done()

	if _, err := c.finish(id, in, ticket, err); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropMessage(id, msg.ID)
	if serverMsg == nil {
		return nil, nil
	}
	if _, ok := c.tickets[id]; ok {
		c.addMessage(*serverMsg)
	}
	out := *serverMsg
	return &out, nil
}

// current returns the cached ticket. The caller holds mu.
func (c *Coordinator) current(id uuid.UUID) (*domain.SupportTicket, error) {
	if c.closed {
		return nil, apperrors.ErrSessionDisposed
	}
	t, ok := c.tickets[id]
	if !ok {
		return nil, apperrors.ErrTicketNotFound
	}
	return t, nil
}

// finish settles an intent after the server answered.
func (c *Coordinator) finish(id uuid.UUID, in *intent, result *domain.SupportTicket, err error) (*domain.SupportTicket, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, apperrors.ErrSessionDisposed
	}

	if err != nil {
		c.rollback(id, in)
		c.mu.Unlock()

		c.logger.Warn("ticket action failed", "action", string(in.action), "ticket_id", id, "error", err)
		if isRuleError(err) {
			return nil, err
		}
		return nil, apperrors.NewActionFailedError(string(in.action), err)
	}

	if c.intents[id] == in {
		delete(c.intents, id)
	}
	var conflicts []Conflict
	if result != nil {
		conflicts = c.merge(result)
	}
	var out *domain.SupportTicket
	if t, ok := c.tickets[id]; ok {
		out = t.Clone()
	}
	c.mu.Unlock()

	c.emit(conflicts)
	return out, nil
}

// rollback restores the prior ticket if in is still pending. The caller
// holds mu.
func (c *Coordinator) rollback(id uuid.UUID, in *intent) {
	if in.message != nil {
		c.dropMessage(id, in.message.ID)
	}
	if c.intents[id] != in {
		return
	}
	delete(c.intents, id)
	if _, ok := c.tickets[id]; ok {
		c.tickets[id] = in.prior
	}
}

func isRuleError(err error) bool {
	var conflict *apperrors.LockConflictError
	if errors.As(err, &conflict) {
		return true
	}
	for _, rule := range []error{
		apperrors.ErrAlreadyLocked,
		apperrors.ErrNotOwner,
		apperrors.ErrNotLocked,
		apperrors.ErrTicketFinal,
		apperrors.ErrTicketNotFound,
	} {
		if errors.Is(err, rule) {
			return true
		}
	}
	return false
}

// merge applies an authoritative ticket by last-write-wins. A pending intent
// the ticket contradicts is dropped and reported. The caller holds mu.
func (c *Coordinator) merge(t *domain.SupportTicket) []Conflict {
	var conflicts []Conflict
	if in, ok := c.intents[t.ID]; ok && t.Version >= in.version {
		delete(c.intents, t.ID)
		if !in.confirmedBy(t, c.actor.ID) {
			conflicts = append(conflicts, conflictFor(t, in.action))
			if in.message != nil {
				c.dropMessage(t.ID, in.message.ID)
			}
		}
	}

	if local, ok := c.tickets[t.ID]; ok && t.Version < local.Version {
		return conflicts
	}
	if !domain.CanViewTicket(t, c.actor) {
		c.forget(t.ID)
		return conflicts
	}
	c.tickets[t.ID] = t.Clone()
	return conflicts
}

func conflictFor(t *domain.SupportTicket, action Action) Conflict {
	cf := Conflict{TicketID: t.ID, Action: action, OwnerName: t.AssignedToName}
	if t.AssignedTo != nil {
		owner := *t.AssignedTo
		cf.Owner = &owner
	}
	return cf
}

func (c *Coordinator) forget(id uuid.UUID) {
	delete(c.tickets, id)
	delete(c.messages, id)
	delete(c.intents, id)
}

func (c *Coordinator) addMessage(m domain.TicketMessage) {
	for _, existing := range c.messages[m.TicketID] {
		if existing.ID == m.ID {
			return
		}
	}
	c.messages[m.TicketID] = append(c.messages[m.TicketID], m)
}

func (c *Coordinator) dropMessage(ticketID, msgID uuid.UUID) {
	list := c.messages[ticketID]
	for i, m := range list {
		if m.ID == msgID {
			c.messages[ticketID] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) emit(conflicts []Conflict) {
	for _, cf := range conflicts {
		c.logger.Info("pending ticket action overridden",
			"ticket_id", cf.TicketID, "action", string(cf.Action), "owner", cf.OwnerName)
		if c.onConflict != nil {
			c.onConflict(cf)
		}
	}
}

// Apply merges a ticket event. Reply events also add their message.
// Non-ticket events are ignored.
func (c *Coordinator) Apply(e domain.Event) bool {
	t := domain.TicketOf(e.Payload)
	if t == nil {
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	conflicts := c.merge(t)
	if reply, ok := e.Payload.(domain.TicketReply); ok {
		if _, visible := c.tickets[t.ID]; visible {
			c.addMessage(reply.Message)
		}
	}
	c.mu.Unlock()

	c.emit(conflicts)
	return true
}

// Replace swaps the cache for a snapshot. Tickets missing from it are
// dropped. A cached ticket with a higher version than its snapshot copy is
// kept, and pending intents the snapshot has not caught up with stay applied
// on top of it.
func (c *Coordinator) Replace(tickets []domain.SupportTicket, messages []domain.TicketMessage) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	optimistic, oldMessages := c.tickets, c.messages
	c.tickets = make(map[uuid.UUID]*domain.SupportTicket, len(tickets))
	newer := make(map[uuid.UUID]bool)
	for i := range tickets {
		t := &tickets[i]
		if _, pending := c.intents[t.ID]; !pending {
			if local, ok := optimistic[t.ID]; ok && local.Version > t.Version {
				c.tickets[t.ID] = local
				newer[t.ID] = true
				continue
			}
		}
		if domain.CanViewTicket(t, c.actor) {
			c.tickets[t.ID] = t.Clone()
		}
	}
	c.messages = make(map[uuid.UUID][]domain.TicketMessage)
	for id := range newer {
		for _, m := range oldMessages[id] {
			c.addMessage(m)
		}
	}
	for _, m := range messages {
		if _, ok := c.tickets[m.TicketID]; ok {
			c.addMessage(m)
		}
	}

	var conflicts []Conflict
	for id, in := range c.intents {
		fresh, ok := c.tickets[id]
		if !ok {
			delete(c.intents, id)
			continue
		}
		if fresh.Version >= in.version {
			delete(c.intents, id)
			if !in.confirmedBy(fresh, c.actor.ID) {
				conflicts = append(conflicts, conflictFor(fresh, in.action))
			}
			continue
		}
		in.prior = fresh.Clone()
		if local, ok := optimistic[id]; ok {
			c.tickets[id] = local
		}
		if in.message != nil {
			c.addMessage(*in.message)
		}
	}
	c.mu.Unlock()

	c.emit(conflicts)
}

// Ticket returns a copy of one ticket.
func (c *Coordinator) Ticket(id uuid.UUID) (*domain.SupportTicket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tickets[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tickets returns copies of all cached tickets, newest first.
func (c *Coordinator) Tickets() []*domain.SupportTicket {
	c.mu.Lock()
	out := make([]*domain.SupportTicket, 0, len(c.tickets))
	for _, t := range c.tickets {
		out = append(out, t.Clone())
	}
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Messages returns the conversation of a ticket, oldest first.
func (c *Coordinator) Messages(id uuid.UUID) []domain.TicketMessage {
	c.mu.Lock()
	out := append([]domain.TicketMessage(nil), c.messages[id]...)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Pending reports whether an action on id awaits confirmation.
func (c *Coordinator) Pending(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.intents[id]
	return ok
}

// Shutdown cancels in-flight actions. Later actions return ErrSessionDisposed.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

func (c *Coordinator) actionContext(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
