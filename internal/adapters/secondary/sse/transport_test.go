package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/stream"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

type staticToken string

func (s staticToken) Get() (string, error) { return string(s), nil }

type brokenToken struct{}

func (brokenToken) Get() (string, error) { return "", errors.New("keyring locked") }

var viewer = domain.Actor{ID: uuid.New(), Name: "Ada", Role: domain.RoleAdmin}

func TestTransport_DecodesServerFrames(t *testing.T) {
	event := domain.NewEvent("evt_abc", domain.SystemEvent{ID: "s1", Level: "info", Message: "hello"},
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	eventFrame, err := domain.EventFrame(event)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultPath, r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, viewer.ID.String(), r.URL.Query().Get("userId"))
		assert.Equal(t, "admin", r.URL.Query().Get("role"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		writer, err := stream.NewSSEWriter(w)
		require.NoError(t, err)
		require.NoError(t, writer.WriteFrame(stream.ConnectedFrame(viewer, event.Timestamp)))
		_, _ = fmt.Fprint(w, ": keepalive comment\n\n")
		require.NoError(t, writer.WriteFrame(domain.Frame{Name: "note", Data: []byte("line one\nline two")}))
		require.NoError(t, writer.WriteFrame(eventFrame))
	}))
	defer srv.Close()

	tr, err := NewTransport(srv.URL+"/", viewer, staticToken("tok-1"), nil)
	require.NoError(t, err)

	s, err := tr.Open(context.Background())
	require.NoError(t, err)
	defer s.Close()

	greeting, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, domain.FrameConnected, greeting.Name)

	note, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", string(note.Data))

	got, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "evt_abc", got.ID)
	parsed, err := domain.ParseFrame(got)
	require.NoError(t, err)
	assert.Equal(t, event.Key(), parsed.Key())

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTransport_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"Invalid or expired token"}`, http.StatusUnauthorized)
			},
			want: apperrors.ErrUnauthorized,
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			want: apperrors.ErrForbidden,
		},
		{
			name: "not a stream",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			tr, err := NewTransport(srv.URL, viewer, staticToken("tok"), nil)
			require.NoError(t, err)
			_, err = tr.Open(context.Background())
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestTransport_TokenFailure(t *testing.T) {
	tr, err := NewTransport("http://127.0.0.1:1", viewer, brokenToken{}, nil)
	require.NoError(t, err)
	_, err = tr.Open(context.Background())
	assert.ErrorContains(t, err, "keyring locked")
}

func TestNewTransport_RejectsBadURL(t *testing.T) {
	_, err := NewTransport("ftp://desk.example.com", viewer, staticToken("t"), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStream_CloseUnblocksNext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := stream.NewSSEWriter(w)
		require.NoError(t, err)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	tr, err := NewTransport(srv.URL, viewer, staticToken("tok"), nil)
	require.NoError(t, err)
	s, err := tr.Open(context.Background())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Next()
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())
	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next still blocked after Close")
	}
	assert.NoError(t, s.Close())
}
