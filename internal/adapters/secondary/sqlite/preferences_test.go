package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing test db: %v", err)
		}
	})
	return db
}

func TestPreferences_LoadMissing(t *testing.T) {
	prefs := openTestDB(t, ":memory:").For(uuid.New())

	f, ok, err := prefs.LoadFilter(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, domain.NotificationFilter{}, f)
}

func TestPreferences_SaveOverwritesPerUser(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, ":memory:")
	ada, bea := db.For(uuid.New()), db.For(uuid.New())

	require.NoError(t, ada.SaveFilter(ctx, domain.NotificationFilter{Status: domain.StatusFilterUnread}))
	want := domain.NotificationFilter{Type: domain.TypeError, Status: domain.StatusFilterAll, Search: "checkout"}
	require.NoError(t, ada.SaveFilter(ctx, want))

	got, ok, err := ada.LoadFilter(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	_, ok, err = bea.LoadFilter(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "filters are per user")
}

func TestPreferences_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	user := uuid.New()
	want := domain.NotificationFilter{Priority: domain.PriorityUrgent}

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.For(user).SaveFilter(ctx, want))
	require.NoError(t, first.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	got, ok, err := openTestDB(t, path).For(user).LoadFilter(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestPreferences_CorruptValue(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, ":memory:")
	user := uuid.New()
	_, err := db.db.Exec(`INSERT INTO preferences (user_id, key, value, updated_at) VALUES (?, ?, 'not json', CURRENT_TIMESTAMP)`,
		user.String(), FilterKey)
	require.NoError(t, err)

	_, _, err = db.For(user).LoadFilter(ctx)
	assert.ErrorContains(t, err, "decoding notificationFilters")
}
