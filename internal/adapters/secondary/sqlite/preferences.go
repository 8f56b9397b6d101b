// Package sqlite keeps per-user client state in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// FilterKey is the preference row holding the notification filter.
const FilterKey = "notificationFilters"

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	user_id    TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, key)
);`

// DB is an open preferences database.
type DB struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" is accepted.
func Open(path string) (*DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating preferences table: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// For returns the preference store of one user.
func (d *DB) For(userID uuid.UUID) *Preferences {
	return &Preferences{db: d.db, userID: userID.String(), now: time.Now}
}

// Preferences stores one user's settings.
type Preferences struct {
	db     *sqlx.DB
	userID string
	now    func() time.Time
}

var _ ports.FilterPreferences = (*Preferences)(nil)

// LoadFilter returns the saved filter. ok is false when none was saved.
func (p *Preferences) LoadFilter(ctx context.Context) (domain.NotificationFilter, bool, error) {
	var value string
	err := p.db.GetContext(ctx, &value,
		`SELECT value FROM preferences WHERE user_id = ? AND key = ?`,
		p.userID, FilterKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotificationFilter{}, false, nil
	}
	if err != nil {
		return domain.NotificationFilter{}, false, fmt.Errorf("loading %s: %w", FilterKey, err)
	}

	var f domain.NotificationFilter
	if err := json.Unmarshal([]byte(value), &f); err != nil {
		return domain.NotificationFilter{}, false, fmt.Errorf("decoding %s: %w", FilterKey, err)
	}
	return f, true, nil
}

// SaveFilter replaces the saved filter.
func (p *Preferences) SaveFilter(ctx context.Context, f domain.NotificationFilter) error {
	value, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", FilterKey, err)
	}
	_, err = p.db.ExecContext(ctx, `
INSERT INTO preferences (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		p.userID, FilterKey, string(value), p.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving %s: %w", FilterKey, err)
	}
	return nil
}
