package http

import (
	"fmt"
	"net/http"
)

// errorCodes maps the statuses handlers produce to stable client codes.
var errorCodes = map[int]string{
	http.StatusBadRequest:          "ERR_BAD_REQUEST",
	http.StatusNotFound:            "ERR_NOT_FOUND",
	http.StatusTooManyRequests:     "ERR_RATE_LIMITED",
	http.StatusInternalServerError: "ERR_INTERNAL",
	http.StatusServiceUnavailable:  "ERR_UNAVAILABLE",
}

// AppError carries the status it should be rendered with.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Status  int            `json:"-"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError builds an error for status. An empty code falls back to the
// status default.
func NewAppError(code, field, message string, status int) *AppError {
	if code == "" {
		code = errorCodes[status]
	}
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func (e *AppError) WithParam(key string, value any) *AppError {
	if e.Params == nil {
		e.Params = map[string]any{}
	}
	e.Params[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func statusError(status int, format string, a []any) *AppError {
	msg := format
	if len(a) > 0 {
		msg = fmt.Sprintf(format, a...)
	}
	return NewAppError("", "", msg, status)
}

func BadRequestError(format string, a ...any) *AppError {
	return statusError(http.StatusBadRequest, format, a)
}

func NotFoundError(format string, a ...any) *AppError {
	return statusError(http.StatusNotFound, format, a)
}

func TooManyRequestsError(format string, a ...any) *AppError {
	return statusError(http.StatusTooManyRequests, format, a)
}

func ServiceUnavailableError(format string, a ...any) *AppError {
	return statusError(http.StatusServiceUnavailable, format, a)
}

func InternalError(format string, a ...any) *AppError {
	return statusError(http.StatusInternalServerError, format, a)
}
