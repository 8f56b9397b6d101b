package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_UsesConfiguredTTL(t *testing.T) {
	ttl := 2 * time.Hour
	tm := NewTokenManager("test-secret", ttl)

	actor := domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin, Name: "Root"}

	start := time.Now()

	token, err := tm.GenerateToken(actor)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt)

	expectedExpiry := start.Add(ttl)
	assert.WithinDuration(t, expectedExpiry, claims.ExpiresAt.Time, 2*time.Second)
	assert.Equal(t, actor, claims.Actor())
}

func TestTokenManager_RejectsForeignSignature(t *testing.T) {
	issuer := NewTokenManager("one-secret", time.Hour)
	verifier := NewTokenManager("other-secret", time.Hour)

	token, err := issuer.GenerateToken(domain.Actor{ID: uuid.New(), Role: domain.RoleSupport})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsInvalidActor(t *testing.T) {
	tm := NewTokenManager("test-secret", 0)

	_, err := tm.GenerateToken(domain.Actor{ID: uuid.New(), Role: "guest"})
	assert.Error(t, err)
}

func TestPeekClaims(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	actor := domain.Actor{ID: uuid.New(), Role: domain.RoleSuperAdmin, Name: "Boss"}
	token, err := tm.GenerateToken(actor)
	require.NoError(t, err)

	claims, err := PeekClaims(token)
	require.NoError(t, err)
	assert.Equal(t, actor.ID, claims.UserID)
	assert.Equal(t, domain.RoleSuperAdmin, claims.Role)

	_, err = PeekClaims("not-a-token")
	assert.Error(t, err)
}
