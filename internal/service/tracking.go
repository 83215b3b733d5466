package service

import (
	"context"
	"errors"
	"fmt"

	"whatsapp-agent/backend/internal/models"
	"whatsapp-agent/backend/internal/repository"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/google/uuid"
)

// DefaultHistoryLimit bounds history and recent-action listings
const DefaultHistoryLimit = 50

// TrackingService records messages and actions and answers history queries
type TrackingService struct {
	store *repository.Store
	log   *logger.Logger
}

// NewTrackingService creates a new tracking service
func NewTrackingService(store *repository.Store, log *logger.Logger) *TrackingService {
	return &TrackingService{store: store, log: log}
}

// LogMessage persists an inbound message. A redelivered message returns the stored record with ResultUnchanged.
func (s *TrackingService) LogMessage(ctx context.Context, msg *models.Message) (*models.Message, WriteResult, error) {
	if !s.store.Available() {
		return nil, ResultUnavailable, nil
	}
	if msg.Category == "" {
		msg.Category = models.CategoryUnknown
	}

	err := s.store.Messages.Create(ctx, msg)
	switch {
	case err == nil:
		return msg, ResultApplied, nil
	case errors.Is(err, repository.ErrDuplicate):
		existing, findErr := s.store.Messages.FindByWAMessageID(ctx, msg.WAMessageID)
		if findErr != nil {
			return nil, ResultUnchanged, fmt.Errorf("load redelivered message: %w", findErr)
		}
		return existing, ResultUnchanged, nil
	case errors.Is(err, repository.ErrUnavailable):
		return nil, ResultUnavailable, nil
	default:
		return nil, ResultUnchanged, fmt.Errorf("store message: %w", err)
	}
}

// LogAction records an action against a message
func (s *TrackingService) LogAction(ctx context.Context, messageID uuid.UUID, kind models.ActionKind, payload any, status models.ActionStatus) (*models.Action, WriteResult, error) {
	if !s.store.Available() {
		return nil, ResultUnavailable, nil
	}

	data, err := models.EncodePayload(payload)
	if err != nil {
		return nil, ResultUnchanged, fmt.Errorf("encode action payload: %w", err)
	}
	action := &models.Action{MessageID: messageID, Kind: kind, Payload: data, Status: status}
	if err := s.store.Actions.Create(ctx, action); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ResultNotFound, nil
		case errors.Is(err, repository.ErrUnavailable):
			return nil, ResultUnavailable, nil
		}
		return nil, ResultUnchanged, fmt.Errorf("store action: %w", err)
	}
	s.log.Debug("Action recorded", "action_id", action.ID, "kind", kind, "status", status)
	return action, ResultApplied, nil
}

// MessageHistory lists messages newest first. An empty group lists all groups.
func (s *TrackingService) MessageHistory(ctx context.Context, groupID string, limit int) ([]models.Message, error) {
	if !s.store.Available() {
		return nil, ErrPersistenceUnavailable
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.store.Messages.ListByGroup(ctx, groupID, limit)
}

// ActionsForMessage lists a message's actions newest first
func (s *TrackingService) ActionsForMessage(ctx context.Context, messageID uuid.UUID) ([]models.Action, error) {
	if !s.store.Available() {
		return nil, ErrPersistenceUnavailable
	}
	if _, err := s.store.Messages.FindByID(ctx, messageID); err != nil {
		return nil, err
	}
	return s.store.Actions.ListByMessage(ctx, messageID)
}

// RecentActions lists the latest actions across all messages
func (s *TrackingService) RecentActions(ctx context.Context, limit int) ([]models.Action, error) {
	if !s.store.Available() {
		return nil, ErrPersistenceUnavailable
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.store.Actions.ListRecent(ctx, limit)
}
