package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// CallError describes a failed call to an external collaborator
type CallError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// NewCallError wraps err for op, deciding retryability from the error itself
func NewCallError(op string, err error) *CallError {
	var ce *CallError
	if errors.As(err, &ce) {
		return &CallError{Op: op, StatusCode: ce.StatusCode, Retryable: ce.Retryable, Err: ce.Err}
	}
	return &CallError{Op: op, Retryable: transient(err), Err: err}
}

// StatusError builds the error for a non-2xx HTTP response
func StatusError(op string, status int, body string) *CallError {
	return &CallError{
		Op:         op,
		StatusCode: status,
		Retryable:  RetryableStatus(status),
		Err:        fmt.Errorf("unexpected response: %s", body),
	}
}

// RetryableStatus reports whether an HTTP status is worth retrying later
func RetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500
}

// IsRetryable reports whether err is a transient failure
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return transient(err)
}

func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
