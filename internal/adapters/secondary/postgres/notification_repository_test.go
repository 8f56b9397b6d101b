package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

var admin = domain.Actor{ID: uuid.New(), Name: "Root", Role: domain.RoleAdmin}

func newTestNotification(t *testing.T, title string, typ domain.NotificationType, createdAt time.Time) *domain.Notification {
	t.Helper()
	n, err := domain.NewNotification(domain.NotificationParams{
		Type:     typ,
		Priority: domain.PriorityHigh,
		Title:    title,
		Message:  "payment gateway latency above threshold",
		Metadata: map[string]string{"region": "eu-west"},
	}, createdAt.UTC().Truncate(time.Microsecond))
	require.NoError(t, err)
	return n
}

func TestNotificationRepository_CreateUpdate(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewNotificationRepository(testPool)

	n := newTestNotification(t, "Gateway slow", domain.TypeError, time.Now())
	require.NoError(t, repo.Create(ctx, n))

	require.True(t, n.MarkRead(admin, time.Now().UTC()))
	require.NoError(t, repo.Update(ctx, n))

	n.Resolve(admin, "scaled up", time.Now().UTC())
	require.NoError(t, repo.Update(ctx, n))

	found, err := repo.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, found.ReadStatus)
	assert.True(t, found.IsResolved())
	require.NotNil(t, found.ResolvedBy)
	assert.Equal(t, admin.ID, *found.ResolvedBy)
	assert.Equal(t, map[string]string{"region": "eu-west"}, found.Metadata)
	require.Len(t, found.History, 2)
	assert.Equal(t, domain.ActionRead, found.History[0].Action)
	assert.Equal(t, domain.ActionResolved, found.History[1].Action)
	assert.Equal(t, "scaled up", found.History[1].Note)
	assert.Equal(t, int64(3), found.Version)

	stale := found.Clone()
	stale.Version = 3
	assert.ErrorIs(t, repo.Update(ctx, stale), apperrors.ErrConcurrentUpdate)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotificationNotFound)
}

func TestNotificationRepository_ListAndCount(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewNotificationRepository(testPool)

	base := time.Now().Add(-time.Hour)
	unread := newTestNotification(t, "Unread error", domain.TypeError, base)
	read := newTestNotification(t, "Read market", domain.TypeMarket, base.Add(time.Minute))
	archived := newTestNotification(t, "Archived 50%_off", domain.TypeSystem, base.Add(2*time.Minute))

	read.MarkRead(admin, time.Now().UTC())
	archived.Archive(admin, "", time.Now().UTC())
	for _, n := range []*domain.Notification{unread, read, archived} {
		require.NoError(t, repo.Create(ctx, n))
	}

	tests := []struct {
		name   string
		filter domain.NotificationFilter
		limit  int
		want   []string
	}{
		{name: "active by default", want: []string{"Read market", "Unread error"}},
		{name: "all", filter: domain.NotificationFilter{Status: domain.StatusFilterAll}, want: []string{"Archived 50%_off", "Read market", "Unread error"}},
		{name: "unread", filter: domain.NotificationFilter{Status: domain.StatusFilterUnread}, want: []string{"Unread error"}},
		{name: "read", filter: domain.NotificationFilter{Status: domain.StatusFilterRead}, want: []string{"Read market"}},
		{name: "archived", filter: domain.NotificationFilter{Status: domain.StatusFilterArchived}, want: []string{"Archived 50%_off"}},
		{name: "by type", filter: domain.NotificationFilter{Type: domain.TypeMarket}, want: []string{"Read market"}},
		{name: "search is case insensitive", filter: domain.NotificationFilter{Search: "UNREAD"}, want: []string{"Unread error"}},
		{name: "search escapes wildcards", filter: domain.NotificationFilter{Status: domain.StatusFilterAll, Search: "%_"}, want: []string{"Archived 50%_off"}},
		{name: "unknown status", filter: domain.NotificationFilter{Status: "bogus"}, want: []string{}},
		{name: "limited", filter: domain.NotificationFilter{Status: domain.StatusFilterAll}, limit: 1, want: []string{"Archived 50%_off"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter, tt.limit)
			require.NoError(t, err)
			titles := make([]string, len(got))
			for i, n := range got {
				titles[i] = n.Title
				assert.True(t, tt.filter.Matches(n), "sql and in-memory filter disagree on %q", n.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}

	count, err := repo.CountUnread(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotificationRepository_DeleteArchivedBefore(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewNotificationRepository(testPool)

	now := time.Now().UTC()
	old := newTestNotification(t, "Old", domain.TypeSystem, now.Add(-60*24*time.Hour))
	old.Archive(admin, "", now.Add(-45*24*time.Hour))
	recent := newTestNotification(t, "Recent", domain.TypeSystem, now.Add(-2*24*time.Hour))
	recent.Archive(admin, "", now.Add(-24*time.Hour))
	active := newTestNotification(t, "Active", domain.TypeSystem, now.Add(-90*24*time.Hour))
	for _, n := range []*domain.Notification{old, recent, active} {
		require.NoError(t, repo.Create(ctx, n))
	}

	deleted, err := repo.DeleteArchivedBefore(ctx, domain.CleanupCutoff(now, domain.DefaultRetention))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{old.ID}, deleted)

	_, err = repo.GetByID(ctx, old.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotificationNotFound)
	_, err = repo.GetByID(ctx, recent.ID)
	assert.NoError(t, err)
	_, err = repo.GetByID(ctx, active.ID)
	assert.NoError(t, err)
}

func TestCleanupLogRepository(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewCleanupLogRepository(testPool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	first := &domain.CleanupReport{
		ID:            uuid.New(),
		Timestamp:     now.Add(-time.Hour),
		Result:        domain.CleanupSuccess,
		DeletedCount:  2,
		DeletedIDs:    []uuid.UUID{uuid.New(), uuid.New()},
		OlderThanDays: 30,
	}
	second := &domain.CleanupReport{
		ID:            uuid.New(),
		Timestamp:     now,
		Result:        domain.CleanupError,
		OlderThanDays: 7,
		Details:       "connection reset",
	}
	require.NoError(t, repo.Insert(ctx, first))
	require.NoError(t, repo.Insert(ctx, second))

	logs, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, second.ID, logs[0].ID)
	assert.Equal(t, "connection reset", logs[0].Details)
	assert.Empty(t, logs[0].DeletedIDs)
	assert.Equal(t, first.DeletedIDs, logs[1].DeletedIDs)
	assert.Equal(t, 2, logs[1].DeletedCount)

	limited, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
