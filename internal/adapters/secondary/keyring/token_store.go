// Package keyring keeps the staff bearer token in the OS credential store.
package keyring

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"

	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

const (
	serviceName = "deskctl"
	tokenKey    = "bearer-token"
)

// Open returns the system keyring, falling back to an encrypted file under
// stateDir.
func Open(stateDir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(stateDir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("deskctl-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// TokenStore reads and writes the token of one server profile.
type TokenStore struct {
	ring keyring.Keyring
	key  string
}

var _ ports.TokenStore = (*TokenStore)(nil)

// NewTokenStore keys the token by profile so several servers can be used
// side by side. An empty profile uses the default slot.
func NewTokenStore(ring keyring.Keyring, profile string) *TokenStore {
	key := tokenKey
	if profile != "" {
		key = profile + "/" + tokenKey
	}
	return &TokenStore{ring: ring, key: key}
}

// Get returns the stored token. A missing token is ErrUnauthorized.
func (s *TokenStore) Get() (string, error) {
	item, err := s.ring.Get(s.key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: no token stored, run `deskctl token set`", apperrors.ErrUnauthorized)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", s.key, err)
	}
	return string(item.Data), nil
}

// Set stores token, replacing any previous one.
func (s *TokenStore) Set(token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", apperrors.ErrInvalidInput)
	}
	err := s.ring.Set(keyring.Item{
		Key:   s.key,
		Data:  []byte(token),
		Label: "deskctl bearer token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", s.key, err)
	}
	return nil
}

// Delete removes the stored token. Deleting a missing token is not an error.
func (s *TokenStore) Delete() error {
	err := s.ring.Remove(s.key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", s.key, err)
	}
	return nil
}
