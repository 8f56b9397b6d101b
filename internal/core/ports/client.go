package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// StreamTransport opens the push channel for the session's actor.
type StreamTransport interface {
	Open(ctx context.Context) (FrameStream, error)
}

// FrameStream yields frames until the connection ends. Close unblocks a
// pending Next.
type FrameStream interface {
	Next() (domain.Frame, error)
	Close() error
}

// SnapshotSource fetches the authoritative state used for a full resync.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
}

// NotificationActions are the server endpoints behind notification user actions.
type NotificationActions interface {
	MarkRead(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	MarkAllRead(ctx context.Context) ([]*domain.Notification, error)
	Resolve(ctx context.Context, id uuid.UUID, note string) (*domain.Notification, error)
	Archive(ctx context.Context, id uuid.UUID, note string) (*domain.Notification, error)
	CleanupArchived(ctx context.Context, olderThanDays int) (*domain.CleanupReport, error)
}

// TicketActions are the server endpoints behind ticket user actions. The
// acting user is the session's authenticated actor.
type TicketActions interface {
	Assign(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error)
	Unassign(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error)
	Reply(ctx context.Context, ticketID uuid.UUID, content string) (*domain.SupportTicket, *domain.TicketMessage, error)
	Resolve(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error)
	Close(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error)
}

// FilterPreferences persists the last used notification filter. The bool is
// false when nothing was stored yet.
type FilterPreferences interface {
	LoadFilter(ctx context.Context) (domain.NotificationFilter, bool, error)
	SaveFilter(ctx context.Context, filter domain.NotificationFilter) error
}

// TokenStore keeps the CLI's bearer token.
type TokenStore interface {
	Get() (string, error)
	Set(token string) error
	Delete() error
}
