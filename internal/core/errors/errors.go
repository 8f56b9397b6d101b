package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Domain errors - these represent business rule violations
var (
	// Authentication & Authorization
	ErrForbidden    = errors.New("action forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidRole  = errors.New("invalid actor role")

	// Ticket coordination
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrAlreadyLocked    = errors.New("ticket is locked by another actor")
	ErrNotOwner         = errors.New("actor does not own the ticket lock")
	ErrNotLocked        = errors.New("ticket is not locked")
	ErrTicketFinal      = errors.New("ticket is already resolved or closed")
	ErrSubjectRequired  = errors.New("subject is required")
	ErrSubjectTooLong   = errors.New("subject exceeds maximum length")
	ErrEmailRequired    = errors.New("requester email is required")
	ErrMessageRequired  = errors.New("message content is required")
	ErrMessageTooLong   = errors.New("message content exceeds maximum length")
	ErrInvalidPriority  = errors.New("invalid priority")
	ErrInvalidStatus    = errors.New("invalid ticket status")
	ErrInvalidCategory  = errors.New("invalid ticket category")
	ErrConcurrentUpdate = errors.New("entity was modified concurrently")

	// Notifications
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidType          = errors.New("invalid notification type")
	ErrTitleRequired        = errors.New("title is required")
	ErrCleanupFailed        = errors.New("archived notification cleanup failed")

	// Session
	ErrConnectionLost     = errors.New("connection to event stream lost")
	ErrActionFailed       = errors.New("action failed")
	ErrSessionDisposed    = errors.New("session disposed")
	ErrResyncNeeded       = errors.New("local state must be resynchronized")
	ErrUnknownEventKind   = errors.New("unknown event kind")
	ErrMalformedEventData = errors.New("malformed event data")

	// Generic
	ErrNotFound     = errors.New("resource not found")
	ErrInternal     = errors.New("internal server error")
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource conflict")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// LockConflictError reports that somebody else holds a ticket lock.
type LockConflictError struct {
	TicketID  uuid.UUID
	Owner     *uuid.UUID
	OwnerName string
	Err       error
}

func (e *LockConflictError) Error() string {
	switch {
	case e.OwnerName != "":
		return fmt.Sprintf("ticket now owned by %s", e.OwnerName)
	case e.Owner != nil:
		return fmt.Sprintf("ticket now owned by %s", e.Owner)
	}
	return e.cause().Error()
}

func (e *LockConflictError) Unwrap() error {
	return e.cause()
}

func (e *LockConflictError) cause() error {
	if e.Err == nil {
		return ErrAlreadyLocked
	}
	return e.Err
}

// ActionFailedError wraps a failed outbound action call.
// It matches both ErrActionFailed and the underlying cause.
type ActionFailedError struct {
	Action string
	Err    error
}

func NewActionFailedError(action string, err error) *ActionFailedError {
	return &ActionFailedError{Action: action, Err: err}
}

func (e *ActionFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Action, ErrActionFailed)
	}
	return fmt.Sprintf("%s: %s: %v", e.Action, ErrActionFailed, e.Err)
}

func (e *ActionFailedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrActionFailed}
	}
	return []error{ErrActionFailed, e.Err}
}

// CleanupFailedError carries the collaborator's report verbatim.
type CleanupFailedError struct {
	RunID     string
	Timestamp time.Time
	Details   string
	Err       error
}

func (e *CleanupFailedError) Error() string {
	msg := ErrCleanupFailed.Error()
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CleanupFailedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCleanupFailed}
	}
	return []error{ErrCleanupFailed, e.Err}
}

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       CodeBadRequest,
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       CodeUnauthorized,
		StatusCode: 401,
	}
}

// NewForbiddenError covers both missing permissions and acting on a lock
// held by someone else; code tells them apart.
func NewForbiddenError(err error, code, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       code,
		StatusCode: 403,
	}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       CodeNotFound,
		StatusCode: 404,
	}
}

func NewConflictError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       CodeConflict,
		StatusCode: 409,
	}
}

// NewLockError builds the 409 response for a ticket coordination conflict.
func NewLockError(err error, code, message string, details map[string]interface{}) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       code,
		StatusCode: 409,
		Details:    details,
	}
}

// NewValidationError reports a single rejected value. Field-level
// failures use ValidationErrors instead.
func NewValidationError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       CodeValidation,
		StatusCode: 400,
	}
}

func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       CodeRateLimited,
		StatusCode: 429,
	}
}

// NewCleanupError carries the failed run's report to the caller.
func NewCleanupError(err *CleanupFailedError) *AppError {
	return &AppError{
		Err:        err,
		Message:    "Cleanup failed",
		Code:       CodeCleanupFailed,
		StatusCode: 500,
		Details: map[string]interface{}{
			"id":        err.RunID,
			"timestamp": err.Timestamp,
			"details":   err.Details,
		},
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       CodeInternal,
		StatusCode: 500,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}

// Machine-readable codes carried in HTTP error bodies.
const (
	CodeAlreadyLocked = "ALREADY_LOCKED"
	CodeNotOwner      = "NOT_OWNER"
	CodeNotLocked     = "NOT_LOCKED"
	CodeTicketFinal   = "TICKET_FINAL"
	CodeConflict      = "CONFLICT"
	CodeNotFound      = "NOT_FOUND"
	CodeValidation    = "VALIDATION_ERROR"
	CodeBadRequest    = "BAD_REQUEST"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeRateLimited   = "RATE_LIMITED"
	CodeCleanupFailed = "CLEANUP_FAILED"
	CodeInternal      = "INTERNAL_ERROR"
)

var codeSentinels = map[string]error{
	CodeAlreadyLocked: ErrAlreadyLocked,
	CodeNotOwner:      ErrNotOwner,
	CodeNotLocked:     ErrNotLocked,
	CodeTicketFinal:   ErrTicketFinal,
	CodeConflict:      ErrConcurrentUpdate,
	CodeNotFound:      ErrNotFound,
	CodeValidation:    ErrInvalidInput,
	CodeBadRequest:    ErrBadRequest,
	CodeUnauthorized:  ErrUnauthorized,
	CodeForbidden:     ErrForbidden,
	CodeRateLimited:   ErrRateLimited,
	CodeCleanupFailed: ErrCleanupFailed,
	CodeInternal:      ErrInternal,
}

// SentinelForCode maps an error code back to its sentinel. Unknown codes
// map to ErrInternal.
func SentinelForCode(code string) error {
	if err, ok := codeSentinels[code]; ok {
		return err
	}
	return ErrInternal
}
