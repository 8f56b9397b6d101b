package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

const (
	defaultCleanupDays = 30
	maxCleanupDays     = 3650
)

// NotificationHandler serves the admin notification centre.
type NotificationHandler struct {
	notificationService ports.NotificationService
	errorHandler        *ErrorHandler
	logger              *slog.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(
	notificationService ports.NotificationService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		errorHandler:        errorHandler,
		logger:              logger.With("handler", "notification"),
	}
}

// RegisterRoutes sets up the routing for all notification endpoints.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Get("/unread-count", h.HandleUnreadCount)
	r.Patch("/read-all", h.HandleMarkAllRead)
	r.Delete("/cleanup", h.HandleCleanup)
	r.Get("/cleanup/logs", h.HandleCleanupLogs)

	r.Route("/{notificationID}", func(r chi.Router) {
		r.Patch("/read", h.HandleMarkRead)
		r.Patch("/resolve", h.HandleResolve)
		r.Patch("/archive", h.HandleArchive)
	})
}

// --- Request/Response DTOs ---

// CreateNotificationRequest defines the expected JSON body for raising a notification
type CreateNotificationRequest struct {
	Type     string            `json:"type"`
	Priority string            `json:"priority"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NoteRequest is the optional body of resolve and archive.
type NoteRequest struct {
	Note string `json:"note"`
}

// UnreadCountResponse is the body of GET /unread-count.
type UnreadCountResponse struct {
	Count int `json:"count"`
}

// --- Handlers ---

var (
	notificationTypes = []string{
		string(domain.TypeError), string(domain.TypeMarket), string(domain.TypeSupport),
		string(domain.TypeSystem), string(domain.TypeGrading),
	}
	notificationPriorities = []string{
		string(domain.PriorityUrgent), string(domain.PriorityHigh),
		string(domain.PriorityNormal), string(domain.PriorityLow),
	}
)

// HandleList handles GET /notifications
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	v := validation.NewValidator().
		OneOf("type", q.Get("type"), notificationTypes).
		OneOf("priority", q.Get("priority"), notificationPriorities)
	if v.HasErrors() {
		h.errorHandler.Handle(w, r, v.Errors())
		return
	}
	filter := domain.NotificationFilter{
		Type:     domain.NotificationType(q.Get("type")),
		Priority: domain.NotificationPriority(q.Get("priority")),
		Status:   domain.NotificationStatus(q.Get("status")),
		Search:   q.Get("search"),
	}
	limit := validation.ParseIntQueryParam(r, "limit", 0)

	list, err := h.notificationService.List(r.Context(), actor, filter, limit)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteList(w, list)
}

// HandleCreate handles POST /notifications
func (h *NotificationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[CreateNotificationRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	n, err := h.notificationService.Create(r.Context(), domain.NotificationParams{
		Type:     domain.NotificationType(req.Type),
		Priority: domain.NotificationPriority(req.Priority),
		Title:    req.Title,
		Message:  req.Message,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "notification created",
		"notification_id", n.ID,
		"type", n.Type,
		"created_by", actor.ID,
	)

	WriteCreated(w, n)
}

// HandleUnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	count, err := h.notificationService.UnreadCount(r.Context(), actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, UnreadCountResponse{Count: count})
}

// HandleMarkAllRead handles PATCH /notifications/read-all
func (h *NotificationHandler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	updated, err := h.notificationService.MarkAllRead(r.Context(), actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteList(w, updated)
}

// HandleMarkRead handles PATCH /notifications/{id}/read
func (h *NotificationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}

	n, err := h.notificationService.MarkRead(r.Context(), id, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, n)
}

// HandleResolve handles PATCH /notifications/{id}/resolve
func (h *NotificationHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	h.withNote(w, r, h.notificationService.Resolve)
}

// HandleArchive handles PATCH /notifications/{id}/archive
func (h *NotificationHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	h.withNote(w, r, h.notificationService.Archive)
}

// HandleCleanup handles DELETE /notifications/cleanup?days=N
func (h *NotificationHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	days := validation.ParseIntQueryParam(r, "days", defaultCleanupDays)
	v := validation.NewValidator()
	v.Range("days", days, 1, maxCleanupDays)
	if v.HasErrors() {
		h.errorHandler.Handle(w, r, v.Errors())
		return
	}

	report, err := h.notificationService.CleanupArchived(r.Context(), actor, days)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "archived notifications cleaned up",
		"run_id", report.ID,
		"deleted", report.DeletedCount,
		"older_than_days", report.OlderThanDays,
	)

	WriteJSON(w, http.StatusOK, report)
}

// HandleCleanupLogs handles GET /notifications/cleanup/logs
func (h *NotificationHandler) HandleCleanupLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	limit := validation.ParseIntQueryParam(r, "limit", 0)
	logs, err := h.notificationService.CleanupLogs(r.Context(), actor, limit)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteList(w, logs)
}

// --- Helper methods ---

type noteChange func(ctx context.Context, id uuid.UUID, actor domain.Actor, note string) (*domain.Notification, error)

func (h *NotificationHandler) withNote(w http.ResponseWriter, r *http.Request, change noteChange) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeOptional[NoteRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	n, err := change(r.Context(), id, actor, req.Note)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) target(w http.ResponseWriter, r *http.Request) (domain.Actor, uuid.UUID, bool) {
	actor, ok := currentActor(w, r)
	if !ok {
		return domain.Actor{}, uuid.Nil, false
	}

	id, err := validation.ParseUUIDParam("notificationID", chi.URLParam(r, "notificationID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return domain.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}
