package stream_test

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/stream"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var goldenAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestEncodeFrame_Event(t *testing.T) {
	event := domain.NewEvent("evt_golden0001", domain.SystemEvent{
		ID:      "sys_1",
		Level:   "warning",
		Source:  "billing",
		Message: "Nightly export delayed",
	}, goldenAt)
	frame, err := domain.EventFrame(event)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, stream.EncodeFrame(&buf, frame))

	newGoldie(t).Assert(t, "event_frame", buf.Bytes())
}

func TestEncodeFrame_Control(t *testing.T) {
	viewer := domain.Actor{
		ID:   uuid.MustParse("6f1c2b9e-3d4a-4c1e-9b7a-1f2e3d4c5b6a"),
		Role: domain.RoleAdmin,
	}

	var buf bytes.Buffer
	for _, f := range []domain.Frame{
		stream.ConnectedFrame(viewer, goldenAt),
		stream.PingFrame(goldenAt),
		stream.ResyncFrame("overflow", goldenAt),
		{Name: "note", Data: []byte("line one\nline two")},
	} {
		require.NoError(t, stream.EncodeFrame(&buf, f))
	}

	newGoldie(t).Assert(t, "control_frames", buf.Bytes())
}

func TestNewSSEWriter_Headers(t *testing.T) {
	rec := httptest.NewRecorder()

	w, err := stream.NewSSEWriter(rec)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(stream.PingFrame(goldenAt)))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.True(t, rec.Flushed)
	assert.Contains(t, rec.Body.String(), "event: ping\n")
}
