package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// TicketRepository is the secondary adapter for ticket persistence.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// Ensure TicketRepository implements the ports.TicketRepository interface.
var _ ports.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

const ticketColumns = `id, subject, email, category, status, priority,
	assigned_to, assigned_to_name, locked, version, created_at, updated_at`

func scanTicket(row pgx.Row) (*domain.SupportTicket, error) {
	var t domain.SupportTicket
	err := row.Scan(
		&t.ID, &t.Subject, &t.Email, &t.Category, &t.Status, &t.Priority,
		&t.AssignedTo, &t.AssignedToName, &t.Locked, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create persists a new ticket entity.
func (r *TicketRepository) Create(ctx context.Context, t *domain.SupportTicket) error {
	const query = `
INSERT INTO support_tickets (` + ticketColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		t.ID, t.Subject, t.Email, t.Category, t.Status, t.Priority,
		t.AssignedTo, t.AssignedToName, t.Locked, t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// GetByID retrieves a single ticket by its ID.
func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SupportTicket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM support_tickets WHERE id = $1`

	t, err := scanTicket(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}
	return t, nil
}

// Update writes the ticket if the stored row is still at the previous
// version.
func (r *TicketRepository) Update(ctx context.Context, t *domain.SupportTicket) error {
	const query = `
UPDATE support_tickets
SET status = $2, priority = $3, category = $4, assigned_to = $5,
    assigned_to_name = $6, locked = $7, version = $8, updated_at = $9
WHERE id = $1 AND version = $8 - 1`

	db := GetDBTX(ctx, r.pool)
	tag, err := db.Exec(ctx, query,
		t.ID, t.Status, t.Priority, t.Category, t.AssignedTo,
		t.AssignedToName, t.Locked, t.Version, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return missingOrStale(ctx, db, "support_tickets", t.ID, apperrors.ErrTicketNotFound)
}

// List returns tickets newest first.
func (r *TicketRepository) List(ctx context.Context, params ports.ListTicketsParams) ([]*domain.SupportTicket, error) {
	const query = `
SELECT ` + ticketColumns + `
FROM support_tickets
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::uuid IS NULL OR assigned_to IS NULL OR assigned_to = $2)
ORDER BY created_at DESC, id
LIMIT NULLIF($3::int, 0) OFFSET $4`

	var status *string
	if params.Status != nil {
		s := string(*params.Status)
		status = &s
	}

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, status, params.VisibleTo, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]*domain.SupportTicket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// AddMessage appends a message to a ticket conversation.
func (r *TicketRepository) AddMessage(ctx context.Context, msg *domain.TicketMessage) error {
	const query = `
INSERT INTO ticket_messages (id, ticket_id, content, from_admin, author_id, author_name, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		msg.ID, msg.TicketID, msg.Content, msg.FromAdmin, msg.AuthorID, msg.AuthorName, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ticket message: %w", err)
	}
	return nil
}

// ListMessages returns the messages of the given tickets, oldest first.
func (r *TicketRepository) ListMessages(ctx context.Context, ticketIDs []uuid.UUID) ([]*domain.TicketMessage, error) {
	if len(ticketIDs) == 0 {
		return []*domain.TicketMessage{}, nil
	}

	const query = `
SELECT id, ticket_id, content, from_admin, author_id, author_name, created_at
FROM ticket_messages
WHERE ticket_id = ANY($1)
ORDER BY created_at, id`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.TicketMessage, 0)
	for rows.Next() {
		var m domain.TicketMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.Content, &m.FromAdmin, &m.AuthorID, &m.AuthorName, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// missingOrStale explains an optimistic update that matched no row.
func missingOrStale(ctx context.Context, db DBTX, table string, id uuid.UUID, notFound error) error {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE id = $1)`
	if err := db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return notFound
	}
	return apperrors.ErrConcurrentUpdate
}
