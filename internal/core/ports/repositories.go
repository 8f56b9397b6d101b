package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// ListTicketsParams defines the input for listing tickets.
type ListTicketsParams struct {
	Status *domain.TicketStatus
	// VisibleTo restricts results to unassigned tickets and tickets held by
	// this actor.
	VisibleTo *uuid.UUID
	Limit     int
	Offset    int
}

// TicketRepository persists support tickets and their messages.
// Update is optimistic: it fails with ErrConcurrentUpdate unless the stored
// version is exactly ticket.Version-1.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.SupportTicket) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SupportTicket, error)
	Update(ctx context.Context, ticket *domain.SupportTicket) error
	List(ctx context.Context, params ListTicketsParams) ([]*domain.SupportTicket, error)
	AddMessage(ctx context.Context, msg *domain.TicketMessage) error
	ListMessages(ctx context.Context, ticketIDs []uuid.UUID) ([]*domain.TicketMessage, error)
}

// NotificationRepository persists notifications. Update is optimistic in the
// same way as TicketRepository.Update.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	Update(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, filter domain.NotificationFilter, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context) (int, error)
	DeleteArchivedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

// CleanupLogRepository stores the run log of the archived-notification purge.
type CleanupLogRepository interface {
	Insert(ctx context.Context, report *domain.CleanupReport) error
	ListRecent(ctx context.Context, limit int) ([]*domain.CleanupReport, error)
}

// TransactionManager defines the port for running atomic operations.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
