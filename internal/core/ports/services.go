package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// EventBroadcaster accepts produced events for delivery to connected viewers.
type EventBroadcaster interface {
	Broadcast(ctx context.Context, event domain.Event) error
}

// TicketService is the authoritative ticket assignment coordinator.
type TicketService interface {
	CreateTicket(ctx context.Context, params domain.TicketParams) (*domain.SupportTicket, error)
	GetTicket(ctx context.Context, ticketID uuid.UUID, viewer domain.Actor) (*domain.SupportTicket, error)
	ListTickets(ctx context.Context, viewer domain.Actor, params ListTicketsParams) ([]*domain.SupportTicket, error)
	ListMessages(ctx context.Context, ticketID uuid.UUID, viewer domain.Actor) ([]*domain.TicketMessage, error)
	Assign(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error)
	Unassign(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error)
	Reply(ctx context.Context, ticketID uuid.UUID, actor domain.Actor, content string) (*domain.SupportTicket, *domain.TicketMessage, error)
	Resolve(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error)
	Close(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error)
}

// NotificationService owns the authoritative notification lifecycle.
type NotificationService interface {
	Create(ctx context.Context, params domain.NotificationParams) (*domain.Notification, error)
	List(ctx context.Context, actor domain.Actor, filter domain.NotificationFilter, limit int) ([]*domain.Notification, error)
	UnreadCount(ctx context.Context, actor domain.Actor) (int, error)
	MarkRead(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, actor domain.Actor) ([]*domain.Notification, error)
	Resolve(ctx context.Context, id uuid.UUID, actor domain.Actor, note string) (*domain.Notification, error)
	Archive(ctx context.Context, id uuid.UUID, actor domain.Actor, note string) (*domain.Notification, error)
	CleanupArchived(ctx context.Context, actor domain.Actor, olderThanDays int) (*domain.CleanupReport, error)
	CleanupLogs(ctx context.Context, actor domain.Actor, limit int) ([]*domain.CleanupReport, error)
}

// SystemEventParams defines the input for an operational broadcast.
type SystemEventParams struct {
	Level   string
	Source  string
	Message string
}

// SyncService builds resync snapshots and emits system events.
type SyncService interface {
	Snapshot(ctx context.Context, viewer domain.Actor) (*domain.Snapshot, error)
	EmitSystemEvent(ctx context.Context, actor domain.Actor, params SystemEventParams) (*domain.SystemEvent, error)
}
