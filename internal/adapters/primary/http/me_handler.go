package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// MeResponse describes the authenticated session.
type MeResponse struct {
	Actor       domain.Actor `json:"actor"`
	Permissions []string     `json:"permissions"`
	ExpiresAt   *time.Time   `json:"expiresAt,omitempty"`
}

// MeHandler handles HTTP requests for the authenticated user.
type MeHandler struct {
	logger *slog.Logger
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(logger *slog.Logger) *MeHandler {
	return &MeHandler{logger: logger.With("handler", "me")}
}

// RegisterRoutes registers the /me routes.
func (h *MeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleMe)
}

// HandleMe handles GET /me.
func (h *MeHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	resp := MeResponse{Actor: actor, Permissions: actor.Permissions()}
	if claims, ok := mw.GetClaims(r.Context()); ok && claims.ExpiresAt != nil {
		expires := claims.ExpiresAt.Time
		resp.ExpiresAt = &expires
	}

	WriteJSON(w, http.StatusOK, resp)
}
