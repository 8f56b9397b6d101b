package middleware_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	mw "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-realtime/internal/auth"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mw.GetClaims(r.Context())
		if ok {
			w.Header().Set("X-User", claims.UserID.String())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTMiddleware(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", time.Hour)
	actor := domain.Actor{ID: uuid.New(), Role: domain.RoleSupport, Name: "Ana"}
	token, err := tm.GenerateToken(actor)
	require.NoError(t, err)

	handler := mw.JWTMiddleware(tm)(okHandler(t))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{name: "bearer header", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "token query", query: "?token=" + token, wantStatus: http.StatusOK},
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "malformed header", header: "Token " + token, wantStatus: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stream"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, actor.ID.String(), rec.Header().Get("X-User"))
			} else {
				assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", time.Hour)
	handler := mw.JWTMiddleware(tm)(mw.RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin)(okHandler(t)))

	for role, want := range map[domain.Role]int{
		domain.RoleSupport:    http.StatusForbidden,
		domain.RoleAdmin:      http.StatusOK,
		domain.RoleSuperAdmin: http.StatusOK,
	} {
		token, err := tm.GenerateToken(domain.Actor{ID: uuid.New(), Role: role})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/admin/notifications", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, want, rec.Code, "role %s", role)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := mw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = mw.GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(mw.RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(mw.RequestIDHeader, "req-42")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "req-42", seen)
	})
}

func TestRequestLogger_RedactsToken(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := mw.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/stream?token=secret-jwt&userId=1", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotContains(t, buf.String(), "secret-jwt")
	assert.Contains(t, buf.String(), "REDACTED")
	assert.Contains(t, buf.String(), "client_ip=203.0.113.9")
}

func TestRecoveryLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := mw.RecoveryLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestRateLimiter_PerActor(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", time.Hour)
	limiter := mw.NewRateLimiter(mw.RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 1, Key: mw.ByActor})
	t.Cleanup(limiter.Close)
	handler := mw.JWTMiddleware(tm)(limiter.Middleware(okHandler(t)))

	request := func(actor domain.Actor) int {
		token, err := tm.GenerateToken(actor)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/support/tickets/x/assign", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	ana := domain.Actor{ID: uuid.New(), Role: domain.RoleSupport}
	ben := domain.Actor{ID: uuid.New(), Role: domain.RoleSupport}

	assert.Equal(t, http.StatusOK, request(ana))
	assert.Equal(t, http.StatusTooManyRequests, request(ana))
	assert.Equal(t, http.StatusOK, request(ben))
}

func TestRateLimiter_ByForwardedIP(t *testing.T) {
	limiter := mw.NewRateLimiter(mw.RateLimiterConfig{RequestsPerSecond: 0.5, BurstSize: 2})
	t.Cleanup(limiter.Close)
	handler := limiter.Middleware(okHandler(t))

	request := func(forwardedFor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/sync", nil)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, request("203.0.113.7, 10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, request("203.0.113.7").Code)

	limited := request("203.0.113.7, 10.0.0.2")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "2", limited.Header().Get("Retry-After"))
	assert.Contains(t, limited.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusOK, request("198.51.100.4").Code)
}
