package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/zsiec/lipsync/internal/avsync"
	"github.com/zsiec/lipsync/internal/registry"
	"github.com/zsiec/lipsync/internal/session"
)

// ErrorType represents the type of error.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeInternal    ErrorType = "INTERNAL_ERROR"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeConflict    ErrorType = "CONFLICT"
	ErrorTypeRateLimit   ErrorType = "RATE_LIMIT"
	ErrorTypeServiceDown ErrorType = "SERVICE_DOWN"
)

// AppError represents an application error with additional context.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCode adds an error code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func New(errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, message, http.StatusInternalServerError)
}

func WrapInternalError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message, http.StatusInternalServerError)
}

func NewTimeoutError(message string) *AppError {
	return New(ErrorTypeTimeout, message, http.StatusRequestTimeout)
}

func NewConflictError(message string) *AppError {
	return New(ErrorTypeConflict, message, http.StatusConflict)
}

func NewRateLimitError(message string) *AppError {
	return New(ErrorTypeRateLimit, message, http.StatusTooManyRequests)
}

func NewServiceDownError(service string) *AppError {
	return New(ErrorTypeServiceDown, fmt.Sprintf("%s is currently unavailable", service), http.StatusServiceUnavailable)
}

// GetAppError extracts an AppError anywhere in err's chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError maps sync and session errors onto their HTTP representation.
// Anything unrecognised becomes an internal error.
func FromError(err error) *AppError {
	if appErr, ok := GetAppError(err); ok {
		return appErr
	}

	switch {
	case stderrors.Is(err, avsync.ErrClosed):
		return Wrap(err, ErrorTypeServiceDown, "session is no longer accepting packets", http.StatusServiceUnavailable).
			WithCode("SESSION_CLOSED")
	case stderrors.Is(err, avsync.ErrInvalidKind):
		return Wrap(err, ErrorTypeValidation, "kind must be audio or video", http.StatusBadRequest).
			WithCode("INVALID_KIND")
	case stderrors.Is(err, session.ErrSessionNotFound), stderrors.Is(err, registry.ErrSessionNotFound):
		return Wrap(err, ErrorTypeNotFound, "session not found", http.StatusNotFound)
	case stderrors.Is(err, session.ErrSessionExists):
		return Wrap(err, ErrorTypeConflict, "session already exists", http.StatusConflict)
	case stderrors.Is(err, session.ErrInvalidSessionID):
		return Wrap(err, ErrorTypeValidation, "session id may only contain letters, digits, '.', '_' and '-'", http.StatusBadRequest).
			WithCode("INVALID_SESSION_ID")
	case stderrors.Is(err, session.ErrHubClosed):
		return Wrap(err, ErrorTypeServiceDown, "service is shutting down", http.StatusServiceUnavailable)
	case stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrorTypeTimeout, "request timed out waiting for queue space", http.StatusRequestTimeout)
	default:
		return WrapInternalError(err, "An unexpected error occurred")
	}
}
