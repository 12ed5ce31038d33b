// Package apperr holds the error kinds shared by the domain services and
// their translation to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is a client-facing message tagged with one of the kinds above.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

func Invalid(format string, args ...interface{}) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(resource string) error {
	return &Error{Kind: ErrNotFound, Msg: resource + " not found"}
}

func Duplicate(format string, args ...interface{}) error {
	return &Error{Kind: ErrDuplicate, Msg: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) error {
	return &Error{Kind: ErrUnauthorized, Msg: msg}
}

// StatusCode maps an error kind to its HTTP status. Unknown errors are 500.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HTTP converts a service error into an echo error. Internal failures keep
// the cause for logging and expose a generic message.
func HTTP(err error) *echo.HTTPError {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		he := echo.NewHTTPError(code, "internal server error")
		he.Internal = err
		return he
	}
	var ae *Error
	if errors.As(err, &ae) {
		return echo.NewHTTPError(code, ae.Msg)
	}
	return echo.NewHTTPError(code, err.Error())
}
