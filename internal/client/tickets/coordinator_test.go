package tickets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/mocks"
)

var (
	alice    = domain.Actor{ID: uuid.New(), Name: "Alice", Role: domain.RoleSupport}
	bob      = domain.Actor{ID: uuid.New(), Name: "Bob", Role: domain.RoleSupport}
	root     = domain.Actor{ID: uuid.New(), Name: "Root", Role: domain.RoleSuperAdmin}
	baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

type conflictLog struct {
	mu   sync.Mutex
	seen []Conflict
}

func (l *conflictLog) record(c Conflict) {
	l.mu.Lock()
	l.seen = append(l.seen, c)
	l.mu.Unlock()
}

func (l *conflictLog) all() []Conflict {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Conflict(nil), l.seen...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(actor domain.Actor, actions *mocks.MockTicketActions) (*Coordinator, *conflictLog) {
	log := &conflictLog{}
	c := NewCoordinator(actor, actions, log.record, testLogger())
	c.now = func() time.Time { return baseTime.Add(time.Hour) }
	return c, log
}

func openTicket(subject string, age time.Duration) domain.SupportTicket {
	t, err := domain.NewSupportTicket(domain.TicketParams{
		Subject:  subject,
		Email:    "customer@example.com",
		Priority: domain.TicketPriorityHigh,
	}, baseTime.Add(-age))
	if err != nil {
		panic(err)
	}
	return *t
}

// assigned returns the server's copy of t after actor took the lock.
func assigned(t domain.SupportTicket, actor domain.Actor) *domain.SupportTicket {
	c := t.Clone()
	if _, err := c.Assign(actor, baseTime.Add(30*time.Minute)); err != nil {
		panic(err)
	}
	return c
}

func assignedEvent(t *domain.SupportTicket) domain.Event {
	return domain.NewEvent("evt_assign", domain.TicketAssigned{Ticket: *t}, t.UpdatedAt)
}

func TestCoordinator_AssignOptimistic(t *testing.T) {
	actions := mocks.NewMockTicketActions()
	c, conflicts := newTestCoordinator(alice, actions)
	ticket := openTicket("Refund", time.Minute)
	c.Replace([]domain.SupportTicket{ticket}, nil)

	release := make(chan struct{})
	inFlight := make(chan struct{})
	actions.On("Assign", mock.Anything, ticket.ID).
		Run(func(mock.Arguments) {
			close(inFlight)
			<-release
		}).
		Return(assigned(ticket, alice), nil).Once()

	type result struct {
		t   *domain.SupportTicket
		err error
	}
	done := make(chan result, 1)
	go func() {
		got, err := c.Assign(context.Background(), ticket.ID)
		done <- result{got, err}
	}()

	<-inFlight
	local, _ := c.Ticket(ticket.ID)
	assert.True(t, local.IsAssignedTo(alice.ID))
	assert.Equal(t, domain.StatusInProgress, local.Status)
	assert.True(t, c.Pending(ticket.ID))

	close(release)
	r := <-done
	require.NoError(t, r.err)
	assert.True(t, r.t.IsAssignedTo(alice.ID))
	assert.Equal(t, baseTime.Add(30*time.Minute), r.t.UpdatedAt, "server copy is merged")
	assert.False(t, c.Pending(ticket.ID))
	assert.Empty(t, conflicts.all())

	// Holding the lock already: no call.
	again, err := c.Assign(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.True(t, again.IsAssignedTo(alice.ID))
	actions.AssertExpectations(t)
}

func TestCoordinator_LocalRulesFailFast(t *testing.T) {
	ticket := openTicket("Refund", time.Minute)
	held := assigned(ticket, bob)
	resolved := assigned(ticket, alice)
	require.NoError(t, resolved.Resolve(alice, baseTime))

	tests := []struct {
		name   string
		ticket *domain.SupportTicket
		run    func(c *Coordinator, id uuid.UUID) error
		want   error
	}{
		{
			name:   "assign held by another",
			ticket: held,
			run:    func(c *Coordinator, id uuid.UUID) error { _, err := c.Assign(context.Background(), id); return err },
			want:   apperrors.ErrAlreadyLocked,
		},
		{
			name:   "assign final",
			ticket: resolved,
			run:    func(c *Coordinator, id uuid.UUID) error { _, err := c.Assign(context.Background(), id); return err },
			want:   apperrors.ErrTicketFinal,
		},
		{
			name:   "unassign unlocked",
			ticket: &ticket,
			run:    func(c *Coordinator, id uuid.UUID) error { _, err := c.Unassign(context.Background(), id); return err },
			want:   apperrors.ErrNotLocked,
		},
		{
			name:   "reply unlocked",
			ticket: &ticket,
			run:    func(c *Coordinator, id uuid.UUID) error { _, err := c.Reply(context.Background(), id, "hi"); return err },
			want:   apperrors.ErrNotLocked,
		},
		{
			name:   "resolve twice",
			ticket: resolved,
			run:    func(c *Coordinator, id uuid.UUID) error { _, err := c.Resolve(context.Background(), id); return err },
			want:   apperrors.ErrTicketFinal,
		},
		{
			name:   "unknown ticket",
			ticket: &ticket,
			run:    func(c *Coordinator, _ uuid.UUID) error { _, err := c.Close(context.Background(), uuid.New()); return err },
			want:   apperrors.ErrTicketNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions := mocks.NewMockTicketActions()
			// Support staff only see their own and unassigned tickets, so use an
			// admin-visible actor with alice's id.
			actor := domain.Actor{ID: alice.ID, Name: alice.Name, Role: domain.RoleAdmin}
			c, _ := newTestCoordinator(actor, actions)
			c.Replace([]domain.SupportTicket{*tt.ticket}, nil)

			err := tt.run(c, tt.ticket.ID)
			assert.ErrorIs(t, err, tt.want)
			actions.AssertNotCalled(t, "Assign", mock.Anything, mock.Anything)
			actions.AssertExpectations(t)
		})
	}
}

func TestCoordinator_ServerConflictRollsBack(t *testing.T) {
	actions := mocks.NewMockTicketActions()
	c, _ := newTestCoordinator(alice, actions)
	ticket := openTicket("Refund", time.Minute)
	c.Replace([]domain.SupportTicket{ticket}, nil)

	owner := bob.ID
	conflict := &apperrors.LockConflictError{TicketID: ticket.ID, Owner: &owner, OwnerName: "Bob"}
	actions.On("Assign", mock.Anything, ticket.ID).Return(nil, conflict).Once()

	_, err := c.Assign(context.Background(), ticket.ID)
	var lockErr *apperrors.LockConflictError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, "ticket now owned by Bob", err.Error())
	assert.NotErrorIs(t, err, apperrors.ErrActionFailed)

	local, _ := c.Ticket(ticket.ID)
	assert.False(t, local.Locked)
	assert.Equal(t, domain.StatusNew, local.Status)
	assert.False(t, c.Pending(ticket.ID))
}

func TestCoordinator_TransportFailureRollsBack(t *testing.T) {
	actions := mocks.NewMockTicketActions()
	c, _ := newTestCoordinator(alice, actions)
	ticket := assigned(openTicket("Refund", time.Minute), alice)
	c.Replace([]domain.SupportTicket{*ticket}, nil)

	actions.On("Unassign", mock.Anything, ticket.ID).Return(nil, errors.New("connection reset")).Once()

	_, err := c.Unassign(context.Background(), ticket.ID)
	assert.ErrorIs(t, err, apperrors.ErrActionFailed)

	local, _ := c.Ticket(ticket.ID)
	assert.True(t, local.IsAssignedTo(alice.ID))
	assert.Equal(t, ticket.Version, local.Version)
}

func TestCoordinator_ContradictingEventWins(t *testing.T) {
	actions := mocks.NewMockTicketActions()
	c, conflicts := newTestCoordinator(alice, actions)
	ticket := openTicket("Refund", time.Minute)
	c.Replace([]domain.SupportTicket{ticket}, nil)

	// A super admin takes the ticket while alice's assign is in flight.
	taken := assigned(ticket, root)
	owner := root.ID
	actions.On("Assign", mock.Anything, ticket.ID).
		Run(func(mock.Arguments) {
			c.Apply(assignedEvent(taken))
		}).
		Return(nil, &apperrors.LockConflictError{TicketID: ticket.ID, Owner: &owner, OwnerName: "Root"}).Once()

	_, err := c.Assign(context.Background(), ticket.ID)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyLocked)

	require.Len(t, conflicts.all(), 1)
	cf := conflicts.all()[0]
	assert.Equal(t, ticket.ID, cf.TicketID)
	assert.Equal(t, ActionAssign, cf.Action)
	require.NotNil(t, cf.Owner)
	assert.Equal(t, root.ID, *cf.Owner)

	// Support staff stop seeing a ticket someone else holds.
	_, ok := c.Ticket(ticket.ID)
	assert.False(t, ok)
}

func TestCoordinator_ApplyIsIdempotent(t *testing.T) {
	c, _ := newTestCoordinator(root, mocks.NewMockTicketActions())
	ticket := openTicket("Refund", time.Minute)
	c.Apply(domain.NewEvent("evt_new", domain.NewTicket{Ticket: ticket}, ticket.CreatedAt))

	held := assigned(ticket, alice)
	msg, err := held.Reply(alice, "On it", baseTime.Add(40*time.Minute))
	require.NoError(t, err)
	reply := domain.NewEvent("evt_reply", domain.TicketReply{Ticket: *held, Message: msg}, msg.CreatedAt)

	assert.True(t, c.Apply(reply))
	first, _ := c.Ticket(ticket.ID)
	assert.True(t, c.Apply(reply))
	second, _ := c.Ticket(ticket.ID)

	assert.Equal(t, first, second)
	assert.Len(t, c.Messages(ticket.ID), 1)

	// An older copy does not overwrite.
	c.Apply(domain.NewEvent("evt_new", domain.NewTicket{Ticket: ticket}, ticket.CreatedAt))
	current, _ := c.Ticket(ticket.ID)
	assert.True(t, current.IsAssignedTo(alice.ID))

	assert.False(t, c.Apply(domain.NewEvent("evt_sys", domain.SystemEvent{ID: "s1"}, baseTime)))
}

func TestCoordinator_Reply(t *testing.T) {
	t.Run("success swaps in the server message", func(t *testing.T) {
		actions := mocks.NewMockTicketActions()
		c, _ := newTestCoordinator(alice, actions)
		ticket := assigned(openTicket("Refund", time.Minute), alice)
		c.Replace([]domain.SupportTicket{*ticket}, nil)

		server := ticket.Clone()
		serverMsg, err := server.Reply(alice, "Refund issued", baseTime.Add(50*time.Minute))
		require.NoError(t, err)

		inFlight := make(chan struct{})
		release := make(chan struct{})
		actions.On("Reply", mock.Anything, ticket.ID, "Refund issued").
			Run(func(mock.Arguments) {
				close(inFlight)
				<-release
			}).
			Return(server, &serverMsg, nil).Once()

		errc := make(chan error, 1)
		go func() {
			_, err := c.Reply(context.Background(), ticket.ID, "Refund issued")
			errc <- err
		}()

		<-inFlight
		pending := c.Messages(ticket.ID)
		require.Len(t, pending, 1)
		assert.NotEqual(t, serverMsg.ID, pending[0].ID)
		assert.True(t, pending[0].FromAdmin)

		close(release)
		require.NoError(t, <-errc)
		got := c.Messages(ticket.ID)
		require.Len(t, got, 1)
		assert.Equal(t, serverMsg.ID, got[0].ID)
	})

	t.Run("failure drops the message", func(t *testing.T) {
		actions := mocks.NewMockTicketActions()
		c, _ := newTestCoordinator(alice, actions)
		ticket := assigned(openTicket("Refund", time.Minute), alice)
		c.Replace([]domain.SupportTicket{*ticket}, nil)

		actions.On("Reply", mock.Anything, ticket.ID, "hello").Return(nil, nil, errors.New("503")).Once()

		_, err := c.Reply(context.Background(), ticket.ID, "hello")
		assert.ErrorIs(t, err, apperrors.ErrActionFailed)
		assert.Empty(t, c.Messages(ticket.ID))
	})

	t.Run("empty content", func(t *testing.T) {
		c, _ := newTestCoordinator(alice, mocks.NewMockTicketActions())
		ticket := assigned(openTicket("Refund", time.Minute), alice)
		c.Replace([]domain.SupportTicket{*ticket}, nil)

		_, err := c.Reply(context.Background(), ticket.ID, "   ")
		assert.ErrorIs(t, err, apperrors.ErrMessageRequired)
	})
}

func TestCoordinator_ResolveKeepsLockThenClose(t *testing.T) {
	actions := mocks.NewMockTicketActions()
	c, _ := newTestCoordinator(alice, actions)
	ticket := assigned(openTicket("Refund", time.Minute), alice)
	c.Replace([]domain.SupportTicket{*ticket}, nil)

	resolved := ticket.Clone()
	require.NoError(t, resolved.Resolve(alice, baseTime.Add(time.Hour)))
	closed := resolved.Clone()
	_, err := closed.Close(alice, baseTime.Add(2*time.Hour))
	require.NoError(t, err)

	actions.On("Resolve", mock.Anything, ticket.ID).Return(resolved, nil).Once()
	actions.On("Close", mock.Anything, ticket.ID).Return(closed, nil).Once()

	got, err := c.Resolve(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, got.Status)
	assert.True(t, got.IsAssignedTo(alice.ID), "resolve keeps the assignee")

	got, err = c.Close(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, got.Status)

	_, err = c.Resolve(context.Background(), ticket.ID)
	assert.ErrorIs(t, err, apperrors.ErrTicketFinal)
	actions.AssertExpectations(t)
}

func TestCoordinator_ReplaceKeepsUnconfirmedIntent(t *testing.T) {
	actions := mocks.NewMockTicketActions()
	c, conflicts := newTestCoordinator(alice, actions)
	ticket := openTicket("Refund", time.Minute)
	other := openTicket("Login", 2*time.Minute)
	c.Replace([]domain.SupportTicket{ticket}, nil)

	inFlight := make(chan struct{})
	release := make(chan struct{})
	actions.On("Assign", mock.Anything, ticket.ID).
		Run(func(mock.Arguments) {
			close(inFlight)
			<-release
		}).
		Return(assigned(ticket, alice), nil).Once()

	errc := make(chan error, 1)
	go func() {
		_, err := c.Assign(context.Background(), ticket.ID)
		errc <- err
	}()
	<-inFlight

	c.Replace([]domain.SupportTicket{ticket, other}, nil)
	local, _ := c.Ticket(ticket.ID)
	assert.True(t, local.IsAssignedTo(alice.ID), "pending assign survives a stale snapshot")
	assert.Len(t, c.Tickets(), 2)

	close(release)
	require.NoError(t, <-errc)
	assert.Empty(t, conflicts.all())
}

func TestCoordinator_ReplaceReportsSupersedingSnapshot(t *testing.T) {
	actions := mocks.NewMockTicketActions()
	c, conflicts := newTestCoordinator(root, actions)
	ticket := openTicket("Refund", time.Minute)
	c.Replace([]domain.SupportTicket{ticket}, nil)

	byBob := assigned(ticket, bob)
	actions.On("Assign", mock.Anything, ticket.ID).
		Run(func(mock.Arguments) {
			c.Replace([]domain.SupportTicket{*byBob}, nil)
		}).
		Return(nil, errors.New("timeout")).Once()

	_, err := c.Assign(context.Background(), ticket.ID)
	assert.ErrorIs(t, err, apperrors.ErrActionFailed)

	local, _ := c.Ticket(ticket.ID)
	assert.True(t, local.IsAssignedTo(bob.ID))
	require.Len(t, conflicts.all(), 1)
	assert.Equal(t, "Bob", conflicts.all()[0].OwnerName)
}

func TestCoordinator_ReplaceKeepsNewerLocalTicket(t *testing.T) {
	actions := mocks.NewMockTicketActions()
	c, conflicts := newTestCoordinator(alice, actions)
	ticket := openTicket("Refund", time.Minute)
	other := openTicket("Login", 2*time.Minute)
	held := assigned(ticket, alice)
	c.Replace([]domain.SupportTicket{*held, other}, nil)

	released := held.Clone()
	_, err := released.Unassign(alice, baseTime.Add(40*time.Minute))
	require.NoError(t, err)
	require.Greater(t, released.Version, held.Version)
	actions.On("Unassign", mock.Anything, ticket.ID).Return(released, nil).Once()

	_, err = c.Unassign(context.Background(), ticket.ID)
	require.NoError(t, err)

	// A snapshot taken before the unassign lands afterwards.
	c.Replace([]domain.SupportTicket{*held}, nil)

	local, ok := c.Ticket(ticket.ID)
	require.True(t, ok)
	assert.Equal(t, released.Version, local.Version)
	assert.False(t, local.Locked)
	assert.Nil(t, local.AssignedTo)

	_, ok = c.Ticket(other.ID)
	assert.False(t, ok, "tickets missing from the snapshot are dropped")
	assert.Empty(t, conflicts.all())

	// A newer snapshot still wins.
	retaken := assigned(*released, bob)
	c.Replace([]domain.SupportTicket{*retaken}, nil)
	local, _ = c.Ticket(ticket.ID)
	assert.True(t, local.IsAssignedTo(bob.ID))
	actions.AssertExpectations(t)
}

func TestCoordinator_AccessorsOrder(t *testing.T) {
	c, _ := newTestCoordinator(root, mocks.NewMockTicketActions())
	older := openTicket("Older", time.Hour)
	newer := openTicket("Newer", time.Minute)

	held := assigned(older, root)
	m1, err := held.Reply(root, "first", baseTime.Add(time.Minute))
	require.NoError(t, err)
	m2, err := held.Reply(root, "second", baseTime.Add(2*time.Minute))
	require.NoError(t, err)

	c.Replace([]domain.SupportTicket{*held, newer}, []domain.TicketMessage{m2, m1})

	list := c.Tickets()
	require.Len(t, list, 2)
	assert.Equal(t, "Newer", list[0].Subject)
	assert.Equal(t, "Older", list[1].Subject)

	msgs := c.Messages(older.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}

func TestCoordinator_TwoStaffScenario(t *testing.T) {
	// Alice assigns t1; Bob's client sees the event and refuses locally.
	ticket := openTicket("Refund", time.Minute)
	aliceActions := mocks.NewMockTicketActions()
	aliceCoord, _ := newTestCoordinator(alice, aliceActions)
	aliceCoord.Replace([]domain.SupportTicket{ticket}, nil)

	adminBob := domain.Actor{ID: bob.ID, Name: bob.Name, Role: domain.RoleAdmin}
	bobActions := mocks.NewMockTicketActions()
	bobCoord, _ := newTestCoordinator(adminBob, bobActions)
	bobCoord.Replace([]domain.SupportTicket{ticket}, nil)

	server := assigned(ticket, alice)
	aliceActions.On("Assign", mock.Anything, ticket.ID).Return(server, nil).Once()

	_, err := aliceCoord.Assign(context.Background(), ticket.ID)
	require.NoError(t, err)
	bobCoord.Apply(assignedEvent(server))

	_, err = bobCoord.Assign(context.Background(), ticket.ID)
	var conflict *apperrors.LockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Alice", conflict.OwnerName)
	bobActions.AssertNotCalled(t, "Assign", mock.Anything, mock.Anything)
}

func TestCoordinator_Shutdown(t *testing.T) {
	actions := mocks.NewMockTicketActions()
	c, _ := newTestCoordinator(alice, actions)
	ticket := openTicket("Refund", time.Minute)
	c.Replace([]domain.SupportTicket{ticket}, nil)

	inFlight := make(chan struct{})
	actions.On("Assign", mock.Anything, ticket.ID).
		Run(func(args mock.Arguments) {
			close(inFlight)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled).Once()

	errc := make(chan error, 1)
	go func() {
		_, err := c.Assign(context.Background(), ticket.ID)
		errc <- err
	}()
	<-inFlight
	c.Shutdown()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, apperrors.ErrSessionDisposed)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight action was not cancelled")
	}
	_, err := c.Unassign(context.Background(), ticket.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionDisposed)
	assert.False(t, c.Apply(assignedEvent(assigned(ticket, bob))))
}
