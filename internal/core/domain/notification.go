package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

// DefaultRetention is how long an archived notification is kept before it
// becomes eligible for cleanup.
const DefaultRetention = 30 * 24 * time.Hour

// NotificationType classifies the producing subsystem.
type NotificationType string

const (
	TypeError   NotificationType = "error"
	TypeMarket  NotificationType = "market"
	TypeSupport NotificationType = "support"
	TypeSystem  NotificationType = "system"
	TypeGrading NotificationType = "grading"
)

// IsValid checks if the type is a known value.
func (t NotificationType) IsValid() bool {
	switch t {
	case TypeError, TypeMarket, TypeSupport, TypeSystem, TypeGrading:
		return true
	}
	return false
}

// NotificationPriority ranks notifications for display.
type NotificationPriority string

const (
	PriorityUrgent NotificationPriority = "urgent"
	PriorityHigh   NotificationPriority = "high"
	PriorityNormal NotificationPriority = "normal"
	PriorityLow    NotificationPriority = "low"
)

// IsValid checks if the priority is a known value.
func (p NotificationPriority) IsValid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// HistoryAction names an entry in a notification's history.
type HistoryAction string

const (
	ActionRead     HistoryAction = "read"
	ActionResolved HistoryAction = "resolved"
	ActionArchived HistoryAction = "archived"
)

// HistoryEntry is one append-only record of a user action.
type HistoryEntry struct {
	Action    HistoryAction `json:"action"`
	Actor     uuid.UUID     `json:"actor"`
	ActorName string        `json:"actorName,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Note      string        `json:"note,omitempty"`
}

// Notification is an operational alert shown in the staff notification centre.
//
// ArchivedAt is only set when Archived is true, and ResolvedBy only when
// ResolvedAt is set.
type Notification struct {
	ID         uuid.UUID            `json:"id"`
	Type       NotificationType     `json:"type"`
	Priority   NotificationPriority `json:"priority"`
	Title      string               `json:"title"`
	Message    string               `json:"message"`
	CreatedAt  time.Time            `json:"createdAt"`
	ReadStatus bool                 `json:"readStatus"`
	ReadAt     *time.Time           `json:"readAt,omitempty"`
	ResolvedAt *time.Time           `json:"resolvedAt,omitempty"`
	ResolvedBy *uuid.UUID           `json:"resolvedBy,omitempty"`
	Archived   bool                 `json:"archived"`
	ArchivedAt *time.Time           `json:"archivedAt,omitempty"`
	History    []HistoryEntry       `json:"history"`
	Metadata   map[string]string    `json:"metadata,omitempty"`
	Version    int64                `json:"version"`
}

// NotificationParams holds the input for raising a notification.
type NotificationParams struct {
	Type     NotificationType
	Priority NotificationPriority
	Title    string
	Message  string
	Metadata map[string]string
}

// Validate checks the notification params.
func (p NotificationParams) Validate() error {
	errs := apperrors.NewValidationErrors()
	if !p.Type.IsValid() {
		errs.Add("type", apperrors.ErrInvalidType.Error())
	}
	if !p.Priority.IsValid() {
		errs.Add("priority", apperrors.ErrInvalidPriority.Error())
	}
	if strings.TrimSpace(p.Title) == "" {
		errs.Add("title", apperrors.ErrTitleRequired.Error())
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// NewNotification creates an unread, active notification.
func NewNotification(params NotificationParams, now time.Time) (*Notification, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Notification{
		ID:        uuid.New(),
		Type:      params.Type,
		Priority:  params.Priority,
		Title:     strings.TrimSpace(params.Title),
		Message:   params.Message,
		CreatedAt: now,
		History:   []HistoryEntry{},
		Metadata:  params.Metadata,
		Version:   1,
	}, nil
}

// IsUnread reports whether the notification counts towards the unread badge.
func (n *Notification) IsUnread() bool {
	return !n.ReadStatus && !n.Archived
}

// IsResolved reports whether the notification has been resolved.
func (n *Notification) IsResolved() bool {
	return n.ResolvedAt != nil
}

// MarkRead flags the notification as read. It returns false when it was
// already read, in which case nothing changes.
func (n *Notification) MarkRead(actor Actor, now time.Time) bool {
	if n.ReadStatus {
		return false
	}
	if n.ReadAt != nil && now.Before(*n.ReadAt) {
		now = *n.ReadAt
	}
	n.ReadStatus = true
	n.ReadAt = &now
	n.record(ActionRead, actor, now, "")
	return true
}

// Resolve records the resolution. Read state is left alone.
func (n *Notification) Resolve(actor Actor, note string, now time.Time) {
	id := actor.ID
	n.ResolvedAt = &now
	n.ResolvedBy = &id
	n.record(ActionResolved, actor, now, note)
}

// Archive hides the notification from default listings until cleanup. It
// returns false when it was already archived, leaving ArchivedAt and the
// retention window untouched.
func (n *Notification) Archive(actor Actor, note string, now time.Time) bool {
	if n.Archived {
		return false
	}
	n.Archived = true
	n.ArchivedAt = &now
	n.record(ActionArchived, actor, now, note)
	return true
}

// EligibleForCleanup reports whether the notification may be hard deleted.
func (n *Notification) EligibleForCleanup(now time.Time, retention time.Duration) bool {
	if !n.Archived || n.ArchivedAt == nil {
		return false
	}
	return n.ArchivedAt.Before(now.Add(-retention))
}

// Clone returns a deep copy.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	c := *n
	c.ReadAt = cloneTime(n.ReadAt)
	c.ResolvedAt = cloneTime(n.ResolvedAt)
	c.ArchivedAt = cloneTime(n.ArchivedAt)
	if n.ResolvedBy != nil {
		id := *n.ResolvedBy
		c.ResolvedBy = &id
	}
	c.History = append([]HistoryEntry(nil), n.History...)
	if n.Metadata != nil {
		c.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (n *Notification) record(action HistoryAction, actor Actor, at time.Time, note string) {
	n.History = append(n.History, HistoryEntry{
		Action:    action,
		Actor:     actor.ID,
		ActorName: actor.Name,
		Timestamp: at,
		Note:      note,
	})
	n.Version++
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
