// Package apperr defines the error taxonomy shared by every endpoint:
// stable wire codes, HTTP status mapping, and typed construction so
// handlers can translate service errors without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable machine-readable error code returned on the wire.
type Code string

const (
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeInvalidSession Code = "INVALID_SESSION"
	CodeStageConflict  Code = "STAGE_CONFLICT"
	CodeNotFound       Code = "NOT_FOUND"
	CodeReplay         Code = "REPLAY_DETECTED"
	CodeKernelFailure  Code = "KERNEL_FAILURE"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// Error carries a wire code alongside a human-readable message.
type Error struct {
	Code  Code
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(cause error, code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), cause: cause}
}

// From extracts the *Error from err, or wraps it as an internal error.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Code: CodeInternal, Msg: "internal error", cause: err}
}

// HTTPStatus maps a code to the HTTP status it is served with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidRequest, CodeInvalidSession:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeStageConflict, CodeReplay:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
