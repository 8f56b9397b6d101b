package domain

import (
	"time"

	"github.com/google/uuid"
)

// CleanupResult is the outcome reported by a cleanup run.
type CleanupResult string

const (
	CleanupSuccess CleanupResult = "success"
	CleanupError   CleanupResult = "error"
)

// CleanupReport is the log entry produced by the archived-notification purge.
type CleanupReport struct {
	ID            uuid.UUID     `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	Result        CleanupResult `json:"result"`
	DeletedCount  int           `json:"deletedCount"`
	DeletedIDs    []uuid.UUID   `json:"deletedIds,omitempty"`
	OlderThanDays int           `json:"olderThanDays"`
	Details       string        `json:"details,omitempty"`
}

// Succeeded reports whether the run completed.
func (r CleanupReport) Succeeded() bool {
	return r.Result == CleanupSuccess
}

// RetentionFromDays converts a day count to a retention window. Non-positive
// values fall back to the default.
func RetentionFromDays(days int) time.Duration {
	if days <= 0 {
		return DefaultRetention
	}
	return time.Duration(days) * 24 * time.Hour
}

// CleanupCutoff is the archivedAt instant before which notifications are purged.
func CleanupCutoff(now time.Time, retention time.Duration) time.Time {
	return now.Add(-retention)
}
