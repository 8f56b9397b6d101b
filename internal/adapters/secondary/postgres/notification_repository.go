package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// NotificationRepository persists notifications with their history as jsonb.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

var _ ports.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

const notificationColumns = `id, type, priority, title, message, created_at,
	read_status, read_at, resolved_at, resolved_by, archived, archived_at,
	history, metadata, version`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n        domain.Notification
		history  []byte
		metadata []byte
	)
	err := row.Scan(
		&n.ID, &n.Type, &n.Priority, &n.Title, &n.Message, &n.CreatedAt,
		&n.ReadStatus, &n.ReadAt, &n.ResolvedAt, &n.ResolvedBy, &n.Archived, &n.ArchivedAt,
		&history, &metadata, &n.Version,
	)
	if err != nil {
		return nil, err
	}

	n.History = []domain.HistoryEntry{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &n.History); err != nil {
			return nil, fmt.Errorf("decode notification history: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode notification metadata: %w", err)
		}
	}
	return &n, nil
}

func encodeJSONB(n *domain.Notification) (history, metadata []byte, err error) {
	entries := n.History
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	if history, err = json.Marshal(entries); err != nil {
		return nil, nil, fmt.Errorf("encode notification history: %w", err)
	}
	if n.Metadata != nil {
		if metadata, err = json.Marshal(n.Metadata); err != nil {
			return nil, nil, fmt.Errorf("encode notification metadata: %w", err)
		}
	}
	return history, metadata, nil
}

// Create persists a new notification.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	history, metadata, err := encodeJSONB(n)
	if err != nil {
		return err
	}

	const query = `
INSERT INTO notifications (` + notificationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = GetDBTX(ctx, r.pool).Exec(ctx, query,
		n.ID, n.Type, n.Priority, n.Title, n.Message, n.CreatedAt,
		n.ReadStatus, n.ReadAt, n.ResolvedAt, n.ResolvedBy, n.Archived, n.ArchivedAt,
		history, metadata, n.Version,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetByID retrieves a single notification.
func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	const query = `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotificationNotFound
		}
		return nil, err
	}
	return n, nil
}

// Update writes the notification if the stored row is still at the previous
// version.
func (r *NotificationRepository) Update(ctx context.Context, n *domain.Notification) error {
	history, metadata, err := encodeJSONB(n)
	if err != nil {
		return err
	}

	const query = `
UPDATE notifications
SET read_status = $2, read_at = $3, resolved_at = $4, resolved_by = $5,
    archived = $6, archived_at = $7, history = $8, metadata = $9, version = $10
WHERE id = $1 AND version = $10 - 1`

	db := GetDBTX(ctx, r.pool)
	tag, err := db.Exec(ctx, query,
		n.ID, n.ReadStatus, n.ReadAt, n.ResolvedAt, n.ResolvedBy,
		n.Archived, n.ArchivedAt, history, metadata, n.Version,
	)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return missingOrStale(ctx, db, "notifications", n.ID, apperrors.ErrNotificationNotFound)
}

// List returns notifications matching the filter, newest first. A
// non-positive limit returns everything.
func (r *NotificationRepository) List(ctx context.Context, filter domain.NotificationFilter, limit int) ([]*domain.Notification, error) {
	where, args := notificationConditions(filter)

	var b strings.Builder
	b.WriteString(`SELECT ` + notificationColumns + ` FROM notifications`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// notificationConditions mirrors domain.NotificationFilter.Matches in SQL.
func notificationConditions(f domain.NotificationFilter) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Type != "" {
		where = append(where, "type = "+arg(string(f.Type)))
	}
	if f.Priority != "" {
		where = append(where, "priority = "+arg(string(f.Priority)))
	}

	switch f.Status {
	case "", domain.StatusFilterActive:
		where = append(where, "NOT archived")
	case domain.StatusFilterUnread:
		where = append(where, "NOT archived", "NOT read_status")
	case domain.StatusFilterRead:
		where = append(where, "NOT archived", "read_status")
	case domain.StatusFilterResolved:
		where = append(where, "NOT archived", "resolved_at IS NOT NULL")
	case domain.StatusFilterArchived:
		where = append(where, "archived")
	case domain.StatusFilterAll:
	default:
		where = append(where, "FALSE")
	}

	if q := strings.TrimSpace(f.Search); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		where = append(where, "(title ILIKE "+p+" OR message ILIKE "+p+")")
	}
	return where, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// CountUnread counts unread, unarchived notifications.
func (r *NotificationRepository) CountUnread(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE NOT read_status AND NOT archived`

	var count int
	if err := GetDBTX(ctx, r.pool).QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteArchivedBefore hard deletes archived notifications older than the
// cutoff and returns their ids.
func (r *NotificationRepository) DeleteArchivedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	const query = `
DELETE FROM notifications
WHERE archived AND archived_at < $1
RETURNING id`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
