package http

import (
	"log/slog"
	"net/http"

	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// SyncHandler serves resync snapshots and operational broadcasts.
type SyncHandler struct {
	syncService  ports.SyncService
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncService ports.SyncService, errorHandler *ErrorHandler, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		syncService:  syncService,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "sync"),
	}
}

// SystemEventRequest defines the expected JSON body for a system event
type SystemEventRequest struct {
	Level   string `json:"level"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// HandleSnapshot handles GET /api/sync
func (h *SyncHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	snapshot, err := h.syncService.Snapshot(r.Context(), actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "snapshot served",
		"notifications", len(snapshot.Notifications),
		"tickets", len(snapshot.Tickets),
	)

	WriteJSON(w, http.StatusOK, snapshot)
}

// HandleSystemEvent handles POST /api/admin/system-events
func (h *SyncHandler) HandleSystemEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[SystemEventRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	event, err := h.syncService.EmitSystemEvent(r.Context(), actor, ports.SystemEventParams{
		Level:   req.Level,
		Source:  req.Source,
		Message: req.Message,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "system event emitted",
		"event_id", event.ID,
		"level", event.Level,
	)

	WriteJSON(w, http.StatusAccepted, event)
}
