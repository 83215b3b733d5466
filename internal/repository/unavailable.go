package repository

import (
	"context"
	"time"

	"whatsapp-agent/backend/internal/models"

	"github.com/google/uuid"
)

// The unavailable* types satisfy the repository contracts when no database is configured.

type unavailableTx struct{}

func (unavailableTx) RunInTx(context.Context, func(context.Context) error) error {
	return ErrUnavailable
}

type unavailableMessages struct{}

func (unavailableMessages) Create(context.Context, *models.Message) error { return ErrUnavailable }

func (unavailableMessages) FindByID(context.Context, uuid.UUID) (*models.Message, error) {
	return nil, ErrUnavailable
}

func (unavailableMessages) FindByWAMessageID(context.Context, string) (*models.Message, error) {
	return nil, ErrUnavailable
}

func (unavailableMessages) ListByGroup(context.Context, string, int) ([]models.Message, error) {
	return nil, ErrUnavailable
}

type unavailableActions struct{}

func (unavailableActions) Create(context.Context, *models.Action) error { return ErrUnavailable }

func (unavailableActions) FindByID(context.Context, uuid.UUID) (*models.Action, error) {
	return nil, ErrUnavailable
}

func (unavailableActions) ListByMessage(context.Context, uuid.UUID) ([]models.Action, error) {
	return nil, ErrUnavailable
}

func (unavailableActions) ListRecent(context.Context, int) ([]models.Action, error) {
	return nil, ErrUnavailable
}

func (unavailableActions) UpdateStatus(context.Context, uuid.UUID, models.ActionStatus, models.ActionStatus, *time.Time) (bool, error) {
	return false, ErrUnavailable
}

func (unavailableActions) UpdatePayload(context.Context, uuid.UUID, []byte) error {
	return ErrUnavailable
}

type unavailableApprovals struct{}

func (unavailableApprovals) Create(context.Context, *models.ApprovalRequest) error {
	return ErrUnavailable
}

func (unavailableApprovals) FindByID(context.Context, uuid.UUID) (*models.ApprovalRequest, error) {
	return nil, ErrUnavailable
}

func (unavailableApprovals) ListPending(context.Context, time.Time) ([]models.ApprovalRequest, error) {
	return nil, ErrUnavailable
}

func (unavailableApprovals) CountExpiredPending(context.Context, time.Time) (int64, error) {
	return 0, ErrUnavailable
}

func (unavailableApprovals) UpdateDraft(context.Context, uuid.UUID, string) error {
	return ErrUnavailable
}
