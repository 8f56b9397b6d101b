package email

import (
	"context"
	"log/slog"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// RequesterMailer forwards events to the next broadcaster and mails the
// ticket requester when staff reply or the ticket is resolved or closed.
// Mail is mocked by logging it.
type RequesterMailer struct {
	next   ports.EventBroadcaster
	logger *slog.Logger
}

var _ ports.EventBroadcaster = (*RequesterMailer)(nil)

// NewRequesterMailer wraps next. A nil logger uses slog.Default.
func NewRequesterMailer(next ports.EventBroadcaster, logger *slog.Logger) *RequesterMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequesterMailer{
		next:   next,
		logger: logger.With("component", "email_notifier"),
	}
}

// Broadcast implements ports.EventBroadcaster. Mail is only sent once the
// event was handed on successfully.
func (m *RequesterMailer) Broadcast(ctx context.Context, event domain.Event) error {
	if m.next != nil {
		if err := m.next.Broadcast(ctx, event); err != nil {
			return err
		}
	}

	ticket, subject, ok := mailFor(event)
	if !ok || ticket.Email == "" {
		return nil
	}

	m.logger.InfoContext(ctx, "mock email sent",
		"to_email", ticket.Email,
		"subject", subject,
		"ticket_id", ticket.ID,
		"event_id", event.ID,
	)
	return nil
}

func mailFor(event domain.Event) (domain.SupportTicket, string, bool) {
	switch p := event.Payload.(type) {
	case domain.TicketReply:
		return p.Ticket, "New reply on: " + p.Ticket.Subject, true
	case domain.TicketResolved:
		return p.Ticket, "Your request was resolved: " + p.Ticket.Subject, true
	case domain.TicketStatusChanged:
		if p.Ticket.Status == domain.StatusClosed {
			return p.Ticket, "Your request was closed: " + p.Ticket.Subject, true
		}
	}
	return domain.SupportTicket{}, "", false
}
