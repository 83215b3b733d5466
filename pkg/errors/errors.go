package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is an error with the HTTP status and machine-readable code it renders as
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WithDetails attaches structured details rendered alongside the message
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func newError(status int) func(code, message string) *AppError {
	return func(code, message string) *AppError {
		return &AppError{StatusCode: status, Code: code, Message: message}
	}
}

var (
	NewBadRequestError         = newError(http.StatusBadRequest)
	NewUnauthorizedError       = newError(http.StatusUnauthorized)
	NewForbiddenError          = newError(http.StatusForbidden)
	NewNotFoundError           = newError(http.StatusNotFound)
	NewConflictError           = newError(http.StatusConflict)
	NewGoneError               = newError(http.StatusGone)
	NewTooManyRequestsError    = newError(http.StatusTooManyRequests)
	NewInternalServerError     = newError(http.StatusInternalServerError)
	NewBadGatewayError         = newError(http.StatusBadGateway)
	NewServiceUnavailableError = newError(http.StatusServiceUnavailable)
)

// Is reports whether err wraps an AppError carrying target's code
func Is(err error, target *AppError) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == target.Code
}
