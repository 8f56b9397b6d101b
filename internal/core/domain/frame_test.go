package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	kinds []domain.EventKind
}

func (r *recordingHandler) add(e domain.Event) { r.kinds = append(r.kinds, e.Kind()) }

func (r *recordingHandler) OnNewTicket(e domain.Event, _ domain.NewTicket) {
	r.add(e)
}

func (r *recordingHandler) OnTicketReply(e domain.Event, _ domain.TicketReply) {
	r.add(e)
}

func (r *recordingHandler) OnTicketAssigned(e domain.Event, _ domain.TicketAssigned) {
	r.add(e)
}

func (r *recordingHandler) OnTicketUnassigned(e domain.Event, _ domain.TicketUnassigned) {
	r.add(e)
}

func (r *recordingHandler) OnTicketResolved(e domain.Event, _ domain.TicketResolved) {
	r.add(e)
}

func (r *recordingHandler) OnTicketStatusChanged(e domain.Event, _ domain.TicketStatusChanged) {
	r.add(e)
}

func (r *recordingHandler) OnSystemEvent(e domain.Event, _ domain.SystemEvent) {
	r.add(e)
}

func (r *recordingHandler) OnNotificationCreated(e domain.Event, _ domain.NotificationCreated) {
	r.add(e)
}

func (r *recordingHandler) OnNotificationResolved(e domain.Event, _ domain.NotificationResolved) {
	r.add(e)
}

func (r *recordingHandler) OnNotificationUpdated(e domain.Event, _ domain.NotificationUpdated) {
	r.add(e)
}

func TestEvent_DispatchCoversEveryKind(t *testing.T) {
	h := &recordingHandler{}
	ticket := domain.SupportTicket{ID: uuid.New()}

	for _, kind := range domain.Kinds() {
		domain.NewEvent("evt", payloadFor(kind, ticket), now).Dispatch(h)
	}

	assert.Equal(t, domain.Kinds(), h.kinds)
}

func TestEventFrame_RoundTrip(t *testing.T) {
	assignee := uuid.New()
	ticket := domain.SupportTicket{
		ID:         uuid.New(),
		Subject:    "Refund",
		Status:     domain.StatusInProgress,
		Priority:   domain.TicketPriorityUrgent,
		AssignedTo: &assignee,
		Locked:     true,
		Version:    4,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	msg := domain.TicketMessage{ID: uuid.New(), TicketID: ticket.ID, Content: "On it", FromAdmin: true, CreatedAt: now}
	original := domain.NewEvent("evt_abc", domain.TicketReply{Ticket: ticket, Message: msg}, now)

	frame, err := domain.EventFrame(original)
	require.NoError(t, err)
	assert.Equal(t, "ticket-reply", frame.Name)
	assert.Equal(t, "evt_abc", frame.ID)
	assert.False(t, frame.IsControl())

	decoded, err := domain.ParseFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, original.Key(), decoded.Key())
	require.NotNil(t, decoded.AssignedTo)
	assert.Equal(t, assignee, *decoded.AssignedTo)

	reply, ok := decoded.Payload.(domain.TicketReply)
	require.True(t, ok)
	assert.Equal(t, "On it", reply.Message.Content)
	assert.Equal(t, int64(4), reply.Ticket.Version)
}

func TestParseFrame_Errors(t *testing.T) {
	t.Run("unknown kind", func(t *testing.T) {
		_, err := domain.ParseFrame(domain.Frame{Name: "ticket-merged", Data: []byte(`{"kind":"ticket-merged","payload":{}}`)})
		assert.ErrorIs(t, err, apperrors.ErrUnknownEventKind)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := domain.ParseFrame(domain.Frame{Name: "new-ticket", Data: []byte(`{`)})
		assert.ErrorIs(t, err, apperrors.ErrMalformedEventData)
	})

	t.Run("name disagrees with body", func(t *testing.T) {
		frame, err := domain.EventFrame(domain.NewEvent("evt", domain.NewTicket{}, now))
		require.NoError(t, err)
		frame.Name = string(domain.KindTicketResolved)
		_, err = domain.ParseFrame(frame)
		assert.ErrorIs(t, err, apperrors.ErrMalformedEventData)
	})
}

func TestEvent_KeyIgnoresEventID(t *testing.T) {
	ticket := domain.SupportTicket{ID: uuid.New()}
	a := domain.NewEvent("evt_1", domain.TicketAssigned{Ticket: ticket}, now)
	b := domain.NewEvent("evt_2", domain.TicketAssigned{Ticket: ticket}, now)
	c := domain.NewEvent("evt_3", domain.TicketUnassigned{Ticket: ticket}, now)

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}
