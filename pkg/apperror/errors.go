package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
	// Retryable is set for failures of a collaborator that may succeed on a later attempt
	Retryable bool `json:"retryable,omitempty"`
}

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// Common errors
var (
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "Resource not found"}
	ErrForbidden      = &AppError{Code: http.StatusForbidden, Message: "Forbidden"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "Internal server error"}
)

// NewAppError creates a new application error
func NewAppError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(fieldErrors []FieldError) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Message: "Validation failed",
		Errors:  fieldErrors,
	}
}

// NewNotFoundError creates a not found error with a custom message
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Message: resource + " not found",
	}
}

// NewConflictError creates a conflict error with a custom message
func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Message: message,
	}
}

// NewBadRequestError creates a bad request error with a custom message
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Message: message,
	}
}

// IllegalTransitionError is returned when a status change is not in the allowed set.
// The order is left untouched.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition from %s to %s", e.From, e.To)
}

// AppError maps the transition failure onto a 409 response.
func (e *IllegalTransitionError) AppError() *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Message: fmt.Sprintf("Order cannot move from %s to %s", e.From, e.To),
		Errors:  []FieldError{{Field: "status", Message: "current status is " + e.From}},
	}
}

// NewIllegalTransitionError creates an illegal transition error
func NewIllegalTransitionError(from, to string) *IllegalTransitionError {
	return &IllegalTransitionError{From: from, To: to}
}

// ExternalServiceError wraps a failure of a collaborator (routing API, data store,
// payment gateway). Retryable tells the caller whether trying again can help.
type ExternalServiceError struct {
	Service   string
	Retryable bool
	Err       error
}

func (e *ExternalServiceError) Error() string {
	if e.Err == nil {
		return e.Service + " unavailable"
	}
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// AppError maps the failure onto a 503 response with retry guidance.
func (e *ExternalServiceError) AppError() *AppError {
	msg := e.Service + " is currently unavailable"
	if e.Retryable {
		msg += ", please retry"
	}
	return &AppError{
		Code:      http.StatusServiceUnavailable,
		Message:   msg,
		Retryable: e.Retryable,
	}
}

// NewExternalServiceError creates a retryable external service error
func NewExternalServiceError(service string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Retryable: true, Err: err}
}

// IsIllegalTransition reports whether err is (or wraps) an IllegalTransitionError
func IsIllegalTransition(err error) bool {
	var te *IllegalTransitionError
	return errors.As(err, &te)
}

// IsExternalService reports whether err is (or wraps) an ExternalServiceError
func IsExternalService(err error) bool {
	var se *ExternalServiceError
	return errors.As(err, &se)
}

// GetAppError maps err onto the AppError sent to clients. Unknown errors become a
// generic 500 so internal details do not leak.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var te *IllegalTransitionError
	if errors.As(err, &te) {
		return te.AppError()
	}
	var se *ExternalServiceError
	if errors.As(err, &se) {
		return se.AppError()
	}
	return ErrInternalServer
}
