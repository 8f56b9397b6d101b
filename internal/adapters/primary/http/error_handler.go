package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	mw "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http/middleware"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	return mw.GetRequestID(ctx)
}

// ErrorResponse is the standard JSON error response format
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ValidationErrorResponse includes field-level validation errors
type ValidationErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler with the given logger
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error and writes the appropriate HTTP response
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs *apperrors.ValidationErrors
	if errors.As(err, &validationErrs) {
		h.logError(r, http.StatusUnprocessableEntity, err)
		h.writeValidationErrorResponse(w, validationErrs)
		return
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = mapDomainError(err)
	}
	h.logError(r, appErr.StatusCode, err)
	h.writeErrorResponse(w, appErr.StatusCode, ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

// mapDomainError converts domain errors to HTTP responses
func mapDomainError(err error) *apperrors.AppError {
	// Typed errors carry details and must be checked before their sentinels.
	var lockErr *apperrors.LockConflictError
	if errors.As(err, &lockErr) {
		details := map[string]interface{}{"ticketId": lockErr.TicketID.String()}
		if lockErr.Owner != nil {
			details["assignedTo"] = lockErr.Owner.String()
		}
		if lockErr.OwnerName != "" {
			details["assignedToName"] = lockErr.OwnerName
		}
		return apperrors.NewLockError(err, apperrors.CodeAlreadyLocked, lockErr.Error(), details)
	}

	var cleanupErr *apperrors.CleanupFailedError
	if errors.As(err, &cleanupErr) {
		return apperrors.NewCleanupError(cleanupErr)
	}

	switch {
	// Authentication & Authorization
	case errors.Is(err, apperrors.ErrUnauthorized):
		return apperrors.NewUnauthorizedError("Authentication required")
	case errors.Is(err, apperrors.ErrForbidden):
		return apperrors.NewForbiddenError(err, apperrors.CodeForbidden, "You do not have permission to perform this action")

	// Not Found errors
	case errors.Is(err, apperrors.ErrTicketNotFound):
		return apperrors.NewNotFoundError(err, "Ticket not found")
	case errors.Is(err, apperrors.ErrNotificationNotFound):
		return apperrors.NewNotFoundError(err, "Notification not found")
	case errors.Is(err, apperrors.ErrNotFound):
		return apperrors.NewNotFoundError(err, "Resource not found")

	// Ticket lock protocol
	case errors.Is(err, apperrors.ErrAlreadyLocked):
		return apperrors.NewLockError(err, apperrors.CodeAlreadyLocked, "Ticket is locked by another staff member", nil)
	case errors.Is(err, apperrors.ErrNotOwner):
		return apperrors.NewForbiddenError(err, apperrors.CodeNotOwner, "You do not hold the lock on this ticket")
	case errors.Is(err, apperrors.ErrNotLocked):
		return apperrors.NewLockError(err, apperrors.CodeNotLocked, "Ticket must be assigned first", nil)
	case errors.Is(err, apperrors.ErrTicketFinal):
		return apperrors.NewLockError(err, apperrors.CodeTicketFinal, "Ticket is already resolved or closed", nil)
	case errors.Is(err, apperrors.ErrConcurrentUpdate),
		errors.Is(err, apperrors.ErrConflict):
		return apperrors.NewConflictError(err, "The resource was modified concurrently, please retry")

	// Validation errors
	case errors.Is(err, apperrors.ErrSubjectRequired),
		errors.Is(err, apperrors.ErrSubjectTooLong),
		errors.Is(err, apperrors.ErrEmailRequired),
		errors.Is(err, apperrors.ErrMessageRequired),
		errors.Is(err, apperrors.ErrMessageTooLong),
		errors.Is(err, apperrors.ErrInvalidPriority),
		errors.Is(err, apperrors.ErrInvalidStatus),
		errors.Is(err, apperrors.ErrInvalidCategory),
		errors.Is(err, apperrors.ErrInvalidType),
		errors.Is(err, apperrors.ErrTitleRequired),
		errors.Is(err, apperrors.ErrInvalidRole),
		errors.Is(err, apperrors.ErrInvalidInput):
		return apperrors.NewValidationError(err, err.Error())

	// Rate limiting
	case errors.Is(err, apperrors.ErrRateLimited):
		return apperrors.NewRateLimitError()

	default:
		return apperrors.NewInternalError(err)
	}
}

// logError logs the error with appropriate context
func (h *ErrorHandler) logError(r *http.Request, statusCode int, err error) {
	logAttrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", statusCode,
		"error", err.Error(),
	}

	switch {
	case statusCode >= 500:
		h.logger.ErrorContext(r.Context(), "server error", logAttrs...)
	case statusCode >= 400:
		h.logger.WarnContext(r.Context(), "client error", logAttrs...)
	default:
		h.logger.InfoContext(r.Context(), "request error", logAttrs...)
	}
}

// writeErrorResponse writes a JSON error response
func (h *ErrorHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// writeValidationErrorResponse writes a validation error response
func (h *ErrorHandler) writeValidationErrorResponse(w http.ResponseWriter, errs *apperrors.ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(ValidationErrorResponse{
		Error:  "Validation failed",
		Code:   apperrors.CodeValidation,
		Fields: errs.Errors,
	})
}

// HandleError Helper function to handle errors inline in handlers
// Usage: if HandleError(w, r, err, h.errorHandler) { return }
func HandleError(w http.ResponseWriter, r *http.Request, err error, handler *ErrorHandler) bool {
	if err != nil {
		handler.Handle(w, r, err)
		return true
	}
	return false
}
