package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/stream"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

// StreamHandler serves the server-sent event channel.
type StreamHandler struct {
	hub          *stream.Hub
	heartbeat    time.Duration
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewStreamHandler creates a new SSE handler. A non-positive heartbeat uses
// stream.DefaultHeartbeat.
func NewStreamHandler(hub *stream.Hub, heartbeat time.Duration, errorHandler *ErrorHandler, logger *slog.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = stream.DefaultHeartbeat
	}
	return &StreamHandler{
		hub:          hub,
		heartbeat:    heartbeat,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "stream"),
	}
}

// ServeHTTP handles GET /api/stream
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	// The server's write timeout would otherwise cut every stream short.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.WarnContext(r.Context(), "failed to clear write deadline", "error", err)
	}

	writer, err := stream.NewSSEWriter(w)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	sub := h.hub.Subscribe(actor)
	defer h.hub.Unsubscribe(sub)

	ctx := logging.WithSessionID(r.Context(), sub.ID)
	start := time.Now()
	h.logger.InfoContext(ctx, "stream opened",
		"remote_addr", r.RemoteAddr,
		"viewers", h.hub.ConnectedViewers(),
	)

	if err := writer.WriteFrame(stream.ConnectedFrame(actor, time.Now().UTC())); err != nil {
		h.logger.DebugContext(ctx, "failed to send greeting", "error", err)
		return
	}

	err = stream.Pump(ctx, sub, h.heartbeat, writer)
	attrs := []any{
		"duration", time.Since(start).Round(time.Millisecond).String(),
		"dropped", sub.Dropped(),
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, stream.ErrHubStopped):
		h.logger.InfoContext(ctx, "stream closed", attrs...)
	default:
		h.logger.WarnContext(ctx, "stream ended with error", append(attrs, "error", err)...)
	}
}
