package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/stream"
	wsAdapter "github.com/lorrc/service-desk-realtime/internal/adapters/primary/websocket"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

// WebSocketHandler handles WebSocket connection upgrades
type WebSocketHandler struct {
	hub       *stream.Hub
	upgrader  websocket.Upgrader
	clientCfg wsAdapter.Config
	logger    *slog.Logger
}

// WebSocketConfig holds configuration for the WebSocket handler
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	// AllowAllOrigins skips the origin check, for development.
	AllowAllOrigins bool
	Client          wsAdapter.Config
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *stream.Hub, cfg WebSocketConfig, logger *slog.Logger) *WebSocketHandler {
	handler := &WebSocketHandler{
		hub:       hub,
		clientCfg: cfg.Client,
		logger:    logger.With("handler", "websocket"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg WebSocketConfig) func(r *http.Request) bool {
	allowedOrigins := cfg.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if cfg.AllowAllOrigins {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			// Allowed origins may be full URLs as configured for CORS.
			if u, err := url.Parse(allowed); err == nil && u.Host != "" {
				allowed = u.Host
			}
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:]
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP handles GET /api/ws. The JWT middleware has already
// authenticated the request, usually through the token query parameter.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.WarnContext(r.Context(), "failed to upgrade websocket connection", "error", err)
		return
	}

	client := wsAdapter.NewClient(h.hub, conn, actor, h.clientCfg, h.logger)
	ctx := logging.WithSessionID(r.Context(), client.SessionID())

	h.logger.InfoContext(ctx, "websocket connection established",
		"remote_addr", r.RemoteAddr,
	)

	client.Serve(ctx)

	h.logger.InfoContext(ctx, "websocket connection closed")
}
