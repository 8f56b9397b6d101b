package stream_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/stream"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runHub(t *testing.T, queueSize int) *stream.Hub {
	t.Helper()
	hub := stream.NewHub(queueSize, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func viewer(role domain.Role) domain.Actor {
	return domain.Actor{ID: uuid.New(), Role: role}
}

func systemEvent(n int) domain.Event {
	return domain.NewEvent(uuid.NewString(), domain.SystemEvent{
		ID:      uuid.NewString(),
		Level:   "info",
		Message: string(rune('a' + n)),
	}, time.Now().UTC().Add(time.Duration(n)*time.Millisecond))
}

func replyEvent(assignee domain.Actor) domain.Event {
	id := assignee.ID
	ticket := domain.SupportTicket{ID: uuid.New(), AssignedTo: &id, Locked: true, Version: 2}
	return domain.NewEvent(uuid.NewString(), domain.TicketReply{
		Ticket:  ticket,
		Message: domain.TicketMessage{ID: uuid.New(), TicketID: ticket.ID, Content: "hi"},
	}, time.Now().UTC())
}

func waitReady(t *testing.T, sub *stream.Subscription) []stream.Delivery {
	t.Helper()
	select {
	case <-sub.Ready():
		return sub.Drain()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func TestHub_FiltersByVisibility(t *testing.T) {
	hub := runHub(t, 0)
	ctx := context.Background()

	ana := viewer(domain.RoleSupport)
	ben := viewer(domain.RoleSupport)
	admin := viewer(domain.RoleAdmin)

	anaSub := hub.Subscribe(ana)
	benSub := hub.Subscribe(ben)
	adminSub := hub.Subscribe(admin)
	assert.Equal(t, 3, hub.ConnectedViewers())

	event := replyEvent(ana)
	require.NoError(t, hub.Broadcast(ctx, event))

	got := waitReady(t, anaSub)
	require.Len(t, got, 1)
	assert.Equal(t, event.ID, got[0].Event.ID)

	got = waitReady(t, adminSub)
	require.Len(t, got, 1)

	// The fan-out is complete once a later broadcast is accepted.
	require.NoError(t, hub.Broadcast(ctx, systemEvent(0)))
	assert.Equal(t, 0, benSub.Len())
}

func TestHub_PreservesProducerOrder(t *testing.T) {
	hub := runHub(t, 0)
	ctx := context.Background()
	sub := hub.Subscribe(viewer(domain.RoleSuperAdmin))

	var want []string
	for i := 0; i < 20; i++ {
		e := systemEvent(i)
		want = append(want, e.ID)
		require.NoError(t, hub.Broadcast(ctx, e))
	}

	var got []string
	for len(got) < len(want) {
		for _, d := range waitReady(t, sub) {
			got = append(got, d.Event.ID)
		}
	}
	assert.Equal(t, want, got)
}

func TestHub_OverflowDropsOldestAndCoalescesResync(t *testing.T) {
	hub := runHub(t, 3)
	ctx := context.Background()
	sub := hub.Subscribe(viewer(domain.RoleSuperAdmin))

	var ids []string
	for i := 0; i < 6; i++ {
		e := systemEvent(i)
		ids = append(ids, e.ID)
		require.NoError(t, hub.Broadcast(ctx, e))
	}
	// One extra round trip through Run so the last enqueue has happened.
	require.NoError(t, hub.Broadcast(ctx, domain.Event{}))

	got := sub.Drain()
	require.Len(t, got, 4)
	assert.True(t, got[0].Resync)
	assert.Equal(t, ids[3], got[1].Event.ID)
	assert.Equal(t, ids[5], got[3].Event.ID)
	assert.Equal(t, uint64(3), sub.Dropped())

	assert.Empty(t, sub.Drain())
}

func TestHub_UnsubscribeClosesSubscription(t *testing.T) {
	hub := runHub(t, 0)
	sub := hub.Subscribe(viewer(domain.RoleAdmin))

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	assert.Equal(t, 0, hub.ConnectedViewers())
	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription not closed")
	}
}

func TestHub_BroadcastAfterStop(t *testing.T) {
	hub := stream.NewHub(0, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	sub := hub.Subscribe(viewer(domain.RoleAdmin))

	cancel()
	<-done

	assert.ErrorIs(t, hub.Broadcast(context.Background(), systemEvent(0)), stream.ErrHubStopped)
	<-sub.Done()
}

func TestHub_BroadcastHonoursContext(t *testing.T) {
	hub := stream.NewHub(0, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// No Run loop: the event is never accepted.
	assert.ErrorIs(t, hub.Broadcast(ctx, systemEvent(0)), context.DeadlineExceeded)
}

func TestHub_RequestResync(t *testing.T) {
	hub := runHub(t, 0)
	sub := hub.Subscribe(viewer(domain.RoleSupport))

	hub.RequestResync()

	got := waitReady(t, sub)
	require.Len(t, got, 1)
	assert.True(t, got[0].Resync)
}

type recordingSink struct {
	mu     sync.Mutex
	frames []domain.Frame
}

func (s *recordingSink) WriteFrame(f domain.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.Name)
	}
	return out
}

func TestPump_WritesEventsAndPings(t *testing.T) {
	hub := runHub(t, 0)
	sub := hub.Subscribe(viewer(domain.RoleSuperAdmin))
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- stream.Pump(ctx, sub, 10*time.Millisecond, sink) }()

	require.NoError(t, hub.Broadcast(context.Background(), systemEvent(0)))

	require.Eventually(t, func() bool {
		names := sink.names()
		var sawEvent, sawPing bool
		for _, n := range names {
			sawEvent = sawEvent || n == string(domain.KindSystemEvent)
			sawPing = sawPing || n == domain.FramePing
		}
		return sawEvent && sawPing
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestPump_StopsWhenUnsubscribed(t *testing.T) {
	hub := runHub(t, 0)
	sub := hub.Subscribe(viewer(domain.RoleAdmin))

	errCh := make(chan error, 1)
	go func() { errCh <- stream.Pump(context.Background(), sub, time.Hour, &recordingSink{}) }()

	hub.Unsubscribe(sub)
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, stream.ErrHubStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop")
	}
}
