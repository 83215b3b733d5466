package service

import (
	"errors"

	"whatsapp-agent/backend/internal/repository"
	"whatsapp-agent/backend/pkg/resilience"
)

var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrAlreadyResolved   = errors.New("approval already resolved")
	ErrApprovalExpired   = errors.New("approval request expired")
	ErrInvalidTransition = errors.New("invalid action status transition")
	// ErrPersistenceUnavailable is returned by reads when no database is configured
	ErrPersistenceUnavailable = repository.ErrUnavailable
)

// ExternalCallError reports a failed classification, retrieval, generation or send call
type ExternalCallError = resilience.CallError

// WriteResult is the outcome of a write against the store
type WriteResult string

const (
	ResultApplied     WriteResult = "applied"
	ResultUnchanged   WriteResult = "unchanged"
	ResultNotFound    WriteResult = "not_found"
	ResultUnavailable WriteResult = "unavailable"
)

func externalError(op string, err error) error {
	if err == nil {
		return nil
	}
	return resilience.NewCallError(op, err)
}
