package domain_test

import (
	"testing"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotification(t *testing.T) *domain.Notification {
	t.Helper()
	n, err := domain.NewNotification(domain.NotificationParams{
		Type:     domain.TypeSupport,
		Priority: domain.PriorityHigh,
		Title:    "Chargeback opened",
		Message:  "Order 1042 disputed",
	}, now)
	require.NoError(t, err)
	return n
}

func TestNewNotification_Validation(t *testing.T) {
	_, err := domain.NewNotification(domain.NotificationParams{Type: "pager", Priority: "p0"}, now)
	var validationErr *apperrors.ValidationErrors
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Errors, "type")
	assert.Contains(t, validationErr.Errors, "priority")
	assert.Contains(t, validationErr.Errors, "title")
}

func TestNotification_MarkRead(t *testing.T) {
	admin := actor(domain.RoleAdmin, "Ada")
	n := newNotification(t)
	assert.True(t, n.IsUnread())

	changed := n.MarkRead(admin, now)
	require.True(t, changed)
	assert.True(t, n.ReadStatus)
	require.NotNil(t, n.ReadAt)
	assert.Equal(t, now, *n.ReadAt)
	require.Len(t, n.History, 1)
	assert.Equal(t, domain.ActionRead, n.History[0].Action)

	version := n.Version
	assert.False(t, n.MarkRead(admin, now.Add(time.Hour)), "second read is a no-op")
	assert.Equal(t, now, *n.ReadAt)
	assert.Len(t, n.History, 1)
	assert.Equal(t, version, n.Version)
}

func TestNotification_ResolveDoesNotMarkRead(t *testing.T) {
	admin := actor(domain.RoleAdmin, "Ada")
	n := newNotification(t)

	n.Resolve(admin, "refunded", now)
	assert.False(t, n.ReadStatus)
	require.NotNil(t, n.ResolvedAt)
	require.NotNil(t, n.ResolvedBy)
	assert.Equal(t, admin.ID, *n.ResolvedBy)
	assert.Equal(t, "refunded", n.History[0].Note)
}

func TestNotification_ArchiveKeepsReadState(t *testing.T) {
	admin := actor(domain.RoleAdmin, "Ada")
	n := newNotification(t)

	assert.True(t, n.Archive(admin, "ops note", now))
	assert.True(t, n.Archived)
	require.NotNil(t, n.ArchivedAt)
	assert.False(t, n.ReadStatus)
	assert.False(t, n.IsUnread(), "archived notifications leave the unread badge")
}

func TestNotification_ArchiveTwiceKeepsRetention(t *testing.T) {
	admin := actor(domain.RoleAdmin, "Ada")
	n := newNotification(t)
	require.True(t, n.Archive(admin, "", now))
	version, history := n.Version, len(n.History)

	later := now.Add(20 * 24 * time.Hour)
	assert.False(t, n.Archive(admin, "again", later))
	assert.Equal(t, now, *n.ArchivedAt)
	assert.Equal(t, version, n.Version)
	assert.Len(t, n.History, history)
	assert.True(t, n.EligibleForCleanup(now.Add(31*24*time.Hour), domain.DefaultRetention))
}

func TestNotification_EligibleForCleanup(t *testing.T) {
	admin := actor(domain.RoleAdmin, "Ada")

	tests := []struct {
		name     string
		archive  bool
		age      time.Duration
		expected bool
	}{
		{"active notification never eligible", false, 90 * 24 * time.Hour, false},
		{"archived yesterday", true, 24 * time.Hour, false},
		{"archived exactly 30 days ago", true, domain.DefaultRetention, false},
		{"archived 31 days ago", true, 31 * 24 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newNotification(t)
			if tt.archive {
				n.Archive(admin, "", now)
			}
			assert.Equal(t, tt.expected, n.EligibleForCleanup(now.Add(tt.age), domain.DefaultRetention))
		})
	}
}

func TestNotification_Invariants(t *testing.T) {
	admin := actor(domain.RoleAdmin, "Ada")
	n := newNotification(t)

	check := func() {
		if n.ArchivedAt != nil {
			assert.True(t, n.Archived)
		}
		if n.ResolvedBy != nil {
			assert.NotNil(t, n.ResolvedAt)
		}
	}

	check()
	n.Resolve(admin, "", now)
	check()
	n.Archive(admin, "", now.Add(time.Minute))
	check()
	n.MarkRead(admin, now.Add(2*time.Minute))
	check()
}

func TestNotification_Clone(t *testing.T) {
	admin := actor(domain.RoleAdmin, "Ada")
	n := newNotification(t)
	n.Metadata = map[string]string{"source": "market"}
	n.MarkRead(admin, now)

	c := n.Clone()
	c.Metadata["source"] = "grading"
	c.History[0].Note = "edited"
	*c.ReadAt = now.Add(time.Hour)

	assert.Equal(t, "market", n.Metadata["source"])
	assert.Empty(t, n.History[0].Note)
	assert.Equal(t, now, *n.ReadAt)
}

func TestNotificationFilter_Matches(t *testing.T) {
	admin := actor(domain.RoleAdmin, "Ada")

	unread := newNotification(t)
	read := newNotification(t)
	read.MarkRead(admin, now)
	resolved := newNotification(t)
	resolved.Resolve(admin, "", now)
	archived := newNotification(t)
	archived.Archive(admin, "", now)
	market := newNotification(t)
	market.Type = domain.TypeMarket
	market.Title = "Price spike on listing"

	all := []*domain.Notification{unread, read, resolved, archived, market}

	tests := []struct {
		name   string
		filter domain.NotificationFilter
		want   []*domain.Notification
	}{
		{"default is active", domain.NotificationFilter{}, []*domain.Notification{unread, read, resolved, market}},
		{"unread", domain.NotificationFilter{Status: domain.StatusFilterUnread}, []*domain.Notification{unread, resolved, market}},
		{"read", domain.NotificationFilter{Status: domain.StatusFilterRead}, []*domain.Notification{read}},
		{"resolved", domain.NotificationFilter{Status: domain.StatusFilterResolved}, []*domain.Notification{resolved}},
		{"archived", domain.NotificationFilter{Status: domain.StatusFilterArchived}, []*domain.Notification{archived}},
		{"all", domain.NotificationFilter{Status: domain.StatusFilterAll}, all},
		{"by type", domain.NotificationFilter{Type: domain.TypeMarket}, []*domain.Notification{market}},
		{"search is case insensitive", domain.NotificationFilter{Search: "PRICE"}, []*domain.Notification{market}},
		{"unknown status matches nothing", domain.NotificationFilter{Status: "snoozed"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []*domain.Notification
			for _, n := range all {
				if tt.filter.Matches(n) {
					got = append(got, n)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
