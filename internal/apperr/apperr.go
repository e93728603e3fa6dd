// Package apperr attaches a client-facing HTTP status to an error, so the
// store can classify failures without importing the transport layer.
package apperr

import (
	"errors"
	"net/http"
)

// Error is an error the client caused or may see verbatim.
type Error struct {
	status int
	err    error
}

// WithStatus marks err to be reported with status.
func WithStatus(status int, err error) *Error {
	return &Error{status: status, err: err}
}

func BadRequest(err error) *Error   { return WithStatus(http.StatusBadRequest, err) }
func Unauthorized(err error) *Error { return WithStatus(http.StatusUnauthorized, err) }
func NotFound(err error) *Error     { return WithStatus(http.StatusNotFound, err) }
func Conflict(err error) *Error     { return WithStatus(http.StatusConflict, err) }

// Status is the HTTP status attached to the error.
func (e *Error) Status() int { return e.status }

func (e *Error) Error() string {
	return http.StatusText(e.status) + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// StatusCode reports the status attached anywhere in err's chain, or 500.
func StatusCode(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.status
	}
	return http.StatusInternalServerError
}

// Detail returns the client-facing message of err without the status text.
func Detail(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.err.Error()
	}
	return err.Error()
}
