package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError so callers can decide between failing a
// request and serving a degraded value.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE_ERROR"
	ErrorTypeAuthorization  ErrorType = "AUTHORIZATION_ERROR"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeConflict       ErrorType = "CONFLICT_ERROR"
	ErrorTypeInternal       ErrorType = "INTERNAL_ERROR"

	// None of these reach a reader; they pick which cached value to serve.
	ErrorTypeTransientRemote ErrorType = "TRANSIENT_REMOTE_ERROR"
	ErrorTypeMalformedLocal  ErrorType = "MALFORMED_LOCAL_ERROR"
	ErrorTypeUnavailable     ErrorType = "UNAVAILABLE_ERROR"
)

var (
	ErrUnknownCollection  = errors.New("unknown collection key")
	ErrCollectionMismatch = errors.New("snapshot does not belong to collection")
	ErrRemoteUnavailable  = errors.New("remote store unavailable")
	ErrMalformedSnapshot  = errors.New("malformed stored snapshot")
	ErrMessageNotFound    = errors.New("message not found")
	ErrReplyLocked        = errors.New("message replies are locked")
	ErrCounterUnavailable = errors.New("counter unavailable")
	ErrAtomicUnsupported  = errors.New("atomic increment not supported by backend")
)

// AppError carries a classification and the status a handler should answer
// with. Component names the layer that produced it, for log correlation.
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	HTTPCode  int                    `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

func newAppError(t ErrorType, message string, status int) *AppError {
	return &AppError{Type: t, Message: message, HTTPCode: status, Details: map[string]interface{}{}}
}

// WithCause records the underlying error; errors.Is sees through it.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

func NewValidationError(message string) *AppError {
	return newAppError(ErrorTypeValidation, message, http.StatusBadRequest)
}

func NewInfrastructureError(message string) *AppError {
	return newAppError(ErrorTypeInfrastructure, message, http.StatusInternalServerError)
}

func NewAuthorizationError(message string) *AppError {
	return newAppError(ErrorTypeAuthorization, message, http.StatusForbidden)
}

// NewNotFoundError formats "<resource> not found".
func NewNotFoundError(resource string) *AppError {
	return newAppError(ErrorTypeNotFound, resource+" not found", http.StatusNotFound)
}

func NewConflictError(message string) *AppError {
	return newAppError(ErrorTypeConflict, message, http.StatusConflict)
}

func NewInternalError(message string) *AppError {
	return newAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// NewTransientRemoteError marks a remote call that failed or timed out.
func NewTransientRemoteError(message string) *AppError {
	return newAppError(ErrorTypeTransientRemote, message, http.StatusServiceUnavailable)
}

// NewMalformedLocalError marks a stored value that could not be decoded.
func NewMalformedLocalError(message string) *AppError {
	return newAppError(ErrorTypeMalformedLocal, message, http.StatusInternalServerError)
}

// NewUnavailableError marks a dependency that is not reachable at all.
func NewUnavailableError(message string) *AppError {
	return newAppError(ErrorTypeUnavailable, message, http.StatusServiceUnavailable)
}

// FieldError is one rejected input field.
type FieldError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors collects field problems before failing a write once.
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: []FieldError{}}
}

func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + ve.Errors[0].Message
}

func (ve *ValidationErrors) Add(field, message string, value interface{}) *ValidationErrors {
	ve.Errors = append(ve.Errors, FieldError{Field: field, Message: message, Value: value})
	return ve
}

func (ve *ValidationErrors) HasErrors() bool { return len(ve.Errors) > 0 }

// ToAppError returns nil when nothing was added.
func (ve *ValidationErrors) ToAppError() *AppError {
	if !ve.HasErrors() {
		return nil
	}
	appErr := NewValidationError(ve.Error())
	appErr.Details["fields"] = ve.Errors
	return appErr
}

func typeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// matches reports whether err is classified as one of types, falling back to
// the plain sentinels when err carries no AppError.
func matches(err error, types []ErrorType, sentinels ...error) bool {
	if t, ok := typeOf(err); ok {
		for _, want := range types {
			if t == want {
				return true
			}
		}
		return false
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool {
	return matches(err, []ErrorType{ErrorTypeNotFound}, ErrMessageNotFound)
}

func IsValidation(err error) bool {
	return matches(err, []ErrorType{ErrorTypeValidation}, ErrUnknownCollection, ErrCollectionMismatch, ErrMalformedSnapshot)
}

func IsAuthorization(err error) bool {
	return matches(err, []ErrorType{ErrorTypeAuthorization})
}

func IsConflict(err error) bool {
	return matches(err, []ErrorType{ErrorTypeConflict}, ErrReplyLocked)
}

// IsTransientRemote is true for remote failures worth retrying later.
func IsTransientRemote(err error) bool {
	return matches(err, []ErrorType{ErrorTypeTransientRemote, ErrorTypeUnavailable}, ErrRemoteUnavailable, ErrCounterUnavailable)
}

// HTTPStatus picks the response status for err.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPCode != 0 {
		return appErr.HTTPCode
	}
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsValidation(err):
		return http.StatusBadRequest
	case IsConflict(err):
		return http.StatusConflict
	case IsTransientRemote(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
