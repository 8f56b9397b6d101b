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

const maxTicketsPerPage = 100

// TicketHandler handles HTTP requests for support tickets and their locks.
type TicketHandler struct {
	ticketService ports.TicketService
	errorHandler  *ErrorHandler
	logger        *slog.Logger
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(
	ticketService ports.TicketService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *TicketHandler {
	return &TicketHandler{
		ticketService: ticketService,
		errorHandler:  errorHandler,
		logger:        logger.With("handler", "ticket"),
	}
}

// RegisterRoutes sets up the routing for all ticket endpoints. actions
// wraps the lock-changing routes, typically with a per-user rate limit.
func (h *TicketHandler) RegisterRoutes(r chi.Router, actions ...func(http.Handler) http.Handler) {
	r.Get("/", h.HandleListTickets)
	r.Post("/", h.HandleCreateTicket)

	r.Route("/{ticketID}", func(r chi.Router) {
		r.Get("/", h.HandleGetTicket)
		r.Get("/messages", h.HandleListMessages)

		r.Group(func(r chi.Router) {
			r.Use(actions...)
			r.Post("/assign", h.HandleAssign)
			r.Post("/unassign", h.HandleUnassign)
			r.Post("/reply", h.HandleReply)
			r.Post("/resolve", h.HandleResolve)
			r.Post("/close", h.HandleClose)
		})
	})
}

// --- Request/Response DTOs ---

// CreateTicketRequest defines the expected JSON body for opening a ticket
type CreateTicketRequest struct {
	Subject  string `json:"subject"`
	Email    string `json:"email"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	Message  string `json:"message"`
}

func (r *CreateTicketRequest) params() domain.TicketParams {
	return domain.TicketParams{
		Subject:  r.Subject,
		Email:    r.Email,
		Category: domain.TicketCategory(r.Category),
		Priority: domain.TicketPriority(r.Priority),
		Message:  r.Message,
	}
}

// ReplyRequest defines the expected JSON body for a staff reply
type ReplyRequest struct {
	Message string `json:"message"`
}

// Validate validates the reply request
func (r *ReplyRequest) Validate() error {
	v := validation.NewValidator()
	v.Required("message", r.Message).
		MaxLength("message", r.Message, domain.MaxMessageLength)
	return v.Err()
}

// ReplyResponse carries the updated ticket and the stored message.
type ReplyResponse struct {
	Ticket  *domain.SupportTicket `json:"ticket"`
	Message *domain.TicketMessage `json:"message"`
}

// --- Handlers ---

// HandleListTickets handles GET /tickets
func (h *TicketHandler) HandleListTickets(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	pagination := validation.ParsePagination(r, maxTicketsPerPage)
	params := ports.ListTicketsParams{
		Limit:  pagination.Limit + 1,
		Offset: pagination.Offset,
	}

	if status := validation.ParseStringQueryParam(r, "status"); status != nil {
		s := domain.TicketStatus(*status)
		if !s.IsValid() {
			v := validation.NewValidator()
			v.Custom("status", false, "Unknown ticket status")
			h.errorHandler.Handle(w, r, v.Errors())
			return
		}
		params.Status = &s
	}

	tickets, err := h.ticketService.ListTickets(r.Context(), actor, params)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WritePaginatedSimple(w, tickets, pagination.Limit, pagination.Offset)
}

// HandleCreateTicket handles POST /tickets
func (h *TicketHandler) HandleCreateTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[CreateTicketRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ticket, err := h.ticketService.CreateTicket(r.Context(), req.params())
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "ticket created",
		"ticket_id", ticket.ID,
		"created_by", actor.ID,
	)

	WriteCreated(w, ticket)
}

// HandleGetTicket handles GET /tickets/{ticketID}
func (h *TicketHandler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.target(w, r)
	if !ok {
		return
	}

	ticket, err := h.ticketService.GetTicket(r.Context(), ticketID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, ticket)
}

// HandleListMessages handles GET /tickets/{ticketID}/messages
func (h *TicketHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.target(w, r)
	if !ok {
		return
	}

	messages, err := h.ticketService.ListMessages(r.Context(), ticketID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteList(w, messages)
}

// HandleAssign handles POST /tickets/{ticketID}/assign
func (h *TicketHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	h.lockAction(w, r, "assign", h.ticketService.Assign)
}

// HandleUnassign handles POST /tickets/{ticketID}/unassign
func (h *TicketHandler) HandleUnassign(w http.ResponseWriter, r *http.Request) {
	h.lockAction(w, r, "unassign", h.ticketService.Unassign)
}

// HandleResolve handles POST /tickets/{ticketID}/resolve
func (h *TicketHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	h.lockAction(w, r, "resolve", h.ticketService.Resolve)
}

// HandleClose handles POST /tickets/{ticketID}/close
func (h *TicketHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	h.lockAction(w, r, "close", h.ticketService.Close)
}

// HandleReply handles POST /tickets/{ticketID}/reply
func (h *TicketHandler) HandleReply(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.target(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[ReplyRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ticket, msg, err := h.ticketService.Reply(r.Context(), ticketID, actor, req.Message)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "ticket replied",
		"ticket_id", ticketID,
		"message_id", msg.ID,
	)

	WriteCreated(w, ReplyResponse{Ticket: ticket, Message: msg})
}

// --- Helper methods ---

type lockChange func(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error)

func (h *TicketHandler) lockAction(w http.ResponseWriter, r *http.Request, action string, change lockChange) {
	actor, ticketID, ok := h.target(w, r)
	if !ok {
		return
	}

	ticket, err := change(r.Context(), ticketID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "ticket "+action,
		"ticket_id", ticketID,
		"status", ticket.Status,
		"version", ticket.Version,
	)

	WriteJSON(w, http.StatusOK, ticket)
}

// target resolves the acting user and the ticket ID from the URL
func (h *TicketHandler) target(w http.ResponseWriter, r *http.Request) (domain.Actor, uuid.UUID, bool) {
	actor, ok := currentActor(w, r)
	if !ok {
		return domain.Actor{}, uuid.Nil, false
	}

	ticketID, err := validation.ParseUUIDParam("ticketID", chi.URLParam(r, "ticketID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return domain.Actor{}, uuid.Nil, false
	}
	return actor, ticketID, true
}
