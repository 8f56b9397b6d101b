package email

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/mocks"
)

func testTicket(status domain.TicketStatus) domain.SupportTicket {
	return domain.SupportTicket{
		ID:      uuid.New(),
		Subject: "Refund pending",
		Email:   "customer@example.com",
		Status:  status,
	}
}

func TestRequesterMailer_Broadcast(t *testing.T) {
	tests := []struct {
		name     string
		payload  domain.Payload
		wantMail string
	}{
		{
			name:     "reply",
			payload:  domain.TicketReply{Ticket: testTicket(domain.StatusInProgress)},
			wantMail: "New reply on: Refund pending",
		},
		{
			name:     "resolved",
			payload:  domain.TicketResolved{Ticket: testTicket(domain.StatusResolved)},
			wantMail: "resolved: Refund pending",
		},
		{
			name:     "closed",
			payload:  domain.TicketStatusChanged{Ticket: testTicket(domain.StatusClosed), PreviousStatus: domain.StatusResolved},
			wantMail: "closed: Refund pending",
		},
		{
			name:    "assignment is internal",
			payload: domain.TicketAssigned{Ticket: testTicket(domain.StatusInProgress)},
		},
		{
			name:    "reopened status change",
			payload: domain.TicketStatusChanged{Ticket: testTicket(domain.StatusInProgress), PreviousStatus: domain.StatusNew},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			next := mocks.NewMockEventBroadcaster()
			next.On("Broadcast", mock.Anything, mock.Anything).Return(nil)

			mailer := NewRequesterMailer(next, logger)
			event := domain.NewEvent("evt_1", tt.payload, time.Now())
			require.NoError(t, mailer.Broadcast(context.Background(), event))

			next.AssertCalled(t, "Broadcast", mock.Anything, event)
			if tt.wantMail == "" {
				assert.NotContains(t, buf.String(), "mock email sent")
				return
			}
			assert.Contains(t, buf.String(), "mock email sent")
			assert.Contains(t, buf.String(), tt.wantMail)
			assert.Contains(t, buf.String(), "customer@example.com")
		})
	}
}

func TestRequesterMailer_NoMailWhenForwardFails(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	boom := errors.New("bus down")
	next := mocks.NewMockEventBroadcaster()
	next.On("Broadcast", mock.Anything, mock.Anything).Return(boom)

	mailer := NewRequesterMailer(next, logger)
	err := mailer.Broadcast(context.Background(),
		domain.NewEvent("evt_2", domain.TicketReply{Ticket: testTicket(domain.StatusInProgress)}, time.Now()))

	assert.ErrorIs(t, err, boom)
	assert.NotContains(t, buf.String(), "mock email sent")
}
