package api

import (
	"errors"

	"whatsapp-agent/backend/internal/repository"
	"whatsapp-agent/backend/internal/service"
	apperrors "whatsapp-agent/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// serviceError maps a service error onto the HTTP error it is reported as
func serviceError(err error) *apperrors.AppError {
	var callErr *service.ExternalCallError
	switch {
	case errors.Is(err, service.ErrMalformedInput):
		return apperrors.NewBadRequestError("MALFORMED_INPUT", err.Error())
	case errors.Is(err, service.ErrAlreadyResolved), errors.Is(err, service.ErrInvalidTransition):
		return apperrors.NewConflictError("ALREADY_RESOLVED", err.Error())
	case errors.Is(err, service.ErrApprovalExpired):
		return apperrors.NewGoneError("APPROVAL_EXPIRED", "The approval request has expired")
	case errors.Is(err, service.ErrPersistenceUnavailable):
		return apperrors.NewServiceUnavailableError("PERSISTENCE_UNAVAILABLE", "No database is configured")
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFoundError("NOT_FOUND", "The requested resource was not found")
	case errors.As(err, &callErr):
		return apperrors.NewBadGatewayError("EXTERNAL_CALL_FAILED", callErr.Error()).WithDetails(gin.H{
			"op":        callErr.Op,
			"retryable": callErr.Retryable,
		})
	default:
		return apperrors.FromError(err)
	}
}

// resultError reports write results that should not be answered with 200
func resultError(result service.WriteResult) *apperrors.AppError {
	switch result {
	case service.ResultNotFound:
		return apperrors.NewNotFoundError("NOT_FOUND", "The approval request was not found")
	case service.ResultUnavailable:
		return apperrors.NewServiceUnavailableError("PERSISTENCE_UNAVAILABLE", "No database is configured")
	}
	return nil
}

func abort(c *gin.Context, err *apperrors.AppError) {
	_ = c.Error(err)
	c.Abort()
}
