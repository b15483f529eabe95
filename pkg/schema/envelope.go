package schema

import (
	"errors"
	"runtime/debug"
)

// Envelope is the uniform success/error wrapper returned by every transport.
// Exactly one of Response or Err is set.
type Envelope struct {
	Response any    `json:"response,omitempty"`
	Err      *Error `json:"error,omitempty"`
}

// OK wraps a successful action result.
func OK(response any) *Envelope {
	return &Envelope{Response: response}
}

// Fail wraps an error, coercing untyped errors into server_error with a
// captured stack so infrastructure faults are never silently flattened.
func Fail(err error) *Envelope {
	var typed *Error
	if errors.As(err, &typed) {
		return &Envelope{Err: typed}
	}
	return &Envelope{Err: NewError(KindServerError, err.Error()).WithStack(string(debug.Stack()))}
}

// IsError reports whether the envelope carries an error.
func (e *Envelope) IsError() bool {
	return e.Err != nil
}

// Status returns the HTTP status for the envelope: 200 for success,
// the error kind's mapped status otherwise.
func (e *Envelope) Status() int {
	if e.Err == nil {
		return 200
	}
	return HTTPStatus(e.Err.Kind)
}
