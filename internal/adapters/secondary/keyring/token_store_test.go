package keyring

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

func TestTokenStore_Lifecycle(t *testing.T) {
	store := NewTokenStore(keyring.NewArrayKeyring(nil), "")

	_, err := store.Get()
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	require.NoError(t, store.Set("tok-1"))
	require.NoError(t, store.Set("tok-2"))
	got, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got)

	require.NoError(t, store.Delete())
	require.NoError(t, store.Delete())
	_, err = store.Get()
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestTokenStore_ProfilesAreSeparate(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	prod := NewTokenStore(ring, "prod")
	staging := NewTokenStore(ring, "staging")

	require.NoError(t, prod.Set("prod-token"))
	_, err := staging.Get()
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	keys, err := ring.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"prod/bearer-token"}, keys)
}

func TestTokenStore_RejectsEmpty(t *testing.T) {
	store := NewTokenStore(keyring.NewArrayKeyring(nil), "")
	assert.ErrorIs(t, store.Set(""), apperrors.ErrInvalidInput)
}
