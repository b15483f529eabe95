package schema

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error surfaced to a client carries exactly one kind,
// and every kind maps to exactly one HTTP status.
const (
	KindSessionNotFound = "session_not_found"
	KindParamValidation = "param_validation"
	KindActionNotFound  = "action_not_found"
	KindNotFound        = "not_found"
	KindNotEnabled      = "not_enabled"
	KindStepExecution   = "step_execution"
	KindConflict        = "conflict"
	KindServerError     = "server_error"
)

// HTTPStatus returns the HTTP status code for an error kind.
// Not-found/not-owned and not-enabled are authorization-shaped business
// rejections and report as validation-class errors rather than 500s.
func HTTPStatus(kind string) int {
	switch kind {
	case KindSessionNotFound:
		return http.StatusUnauthorized
	case KindParamValidation, KindNotFound, KindNotEnabled, KindStepExecution:
		return http.StatusUnprocessableEntity
	case KindActionNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error type shared by every transport.
type Error struct {
	Kind    string `json:"type"`
	Message string `json:"message"`
	Key     string `json:"key,omitempty"`
	Value   any    `json:"value,omitempty"`
	Stack   string `json:"stack,omitempty"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("[%s] %s (key: %s)", e.Kind, e.Message, e.Key)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithKey attaches the offending parameter key and value.
func (e *Error) WithKey(key string, value any) *Error {
	e.Key = key
	e.Value = value
	return e
}

// WithStack attaches a captured stack trace.
func (e *Error) WithStack(stack string) *Error {
	e.Stack = stack
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
