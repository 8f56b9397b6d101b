package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

const defaultCleanupLogLimit = 20

// CleanupLogRepository stores the run log of the archived-notification purge.
type CleanupLogRepository struct {
	pool *pgxpool.Pool
}

var _ ports.CleanupLogRepository = (*CleanupLogRepository)(nil)

// NewCleanupLogRepository creates a new cleanup log repository.
func NewCleanupLogRepository(pool *pgxpool.Pool) *CleanupLogRepository {
	return &CleanupLogRepository{pool: pool}
}

// Insert records a cleanup run.
func (r *CleanupLogRepository) Insert(ctx context.Context, report *domain.CleanupReport) error {
	const query = `
INSERT INTO notification_cleanup_logs (id, ran_at, result, deleted_count, deleted_ids, older_than_days, details)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ids := report.DeletedIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}

	_, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		report.ID, report.Timestamp, report.Result, report.DeletedCount,
		ids, report.OlderThanDays, report.Details,
	)
	if err != nil {
		return fmt.Errorf("insert cleanup log: %w", err)
	}
	return nil
}

// ListRecent returns the latest runs first.
func (r *CleanupLogRepository) ListRecent(ctx context.Context, limit int) ([]*domain.CleanupReport, error) {
	if limit <= 0 {
		limit = defaultCleanupLogLimit
	}

	const query = `
SELECT id, ran_at, result, deleted_count, deleted_ids, older_than_days, details
FROM notification_cleanup_logs
ORDER BY ran_at DESC, id
LIMIT $1`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]*domain.CleanupReport, 0)
	for rows.Next() {
		var rep domain.CleanupReport
		if err := rows.Scan(
			&rep.ID, &rep.Timestamp, &rep.Result, &rep.DeletedCount,
			&rep.DeletedIDs, &rep.OlderThanDays, &rep.Details,
		); err != nil {
			return nil, err
		}
		reports = append(reports, &rep)
	}
	return reports, rows.Err()
}
