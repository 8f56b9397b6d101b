package domain

import (
	"sort"
	"strings"
)

// NotificationStatus selects notifications by lifecycle state in a listing.
type NotificationStatus string

const (
	StatusFilterActive   NotificationStatus = "active"
	StatusFilterUnread   NotificationStatus = "unread"
	StatusFilterRead     NotificationStatus = "read"
	StatusFilterResolved NotificationStatus = "resolved"
	StatusFilterArchived NotificationStatus = "archived"
	StatusFilterAll      NotificationStatus = "all"
)

// IsValid checks if the status filter is a known value. Empty means active.
func (s NotificationStatus) IsValid() bool {
	switch s {
	case "", StatusFilterActive, StatusFilterUnread, StatusFilterRead,
		StatusFilterResolved, StatusFilterArchived, StatusFilterAll:
		return true
	}
	return false
}

// NotificationFilter is the user's selection for the notification list.
// Zero-valued fields match everything except archived notifications.
type NotificationFilter struct {
	Type     NotificationType     `json:"type,omitempty"`
	Priority NotificationPriority `json:"priority,omitempty"`
	Status   NotificationStatus   `json:"status,omitempty"`
	Search   string               `json:"search,omitempty"`
}

// Matches reports whether n passes the filter.
func (f NotificationFilter) Matches(n *Notification) bool {
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Priority != "" && n.Priority != f.Priority {
		return false
	}

	switch f.Status {
	case "", StatusFilterActive:
		if n.Archived {
			return false
		}
	case StatusFilterUnread:
		if n.Archived || n.ReadStatus {
			return false
		}
	case StatusFilterRead:
		if n.Archived || !n.ReadStatus {
			return false
		}
	case StatusFilterResolved:
		if n.Archived || !n.IsResolved() {
			return false
		}
	case StatusFilterArchived:
		if !n.Archived {
			return false
		}
	case StatusFilterAll:
	default:
		return false
	}

	if q := strings.TrimSpace(f.Search); q != "" {
		q = strings.ToLower(q)
		if !strings.Contains(strings.ToLower(n.Title), q) &&
			!strings.Contains(strings.ToLower(n.Message), q) {
			return false
		}
	}
	return true
}

// SortNotifications orders newest first, breaking ties by id.
func SortNotifications(list []*Notification) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}
