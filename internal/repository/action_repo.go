package repository

import (
	"context"
	"time"

	"whatsapp-agent/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type actionRepository struct {
	db *gorm.DB
}

// NewActionRepository creates a gorm action repository
func NewActionRepository(db *gorm.DB) ActionRepository {
	return &actionRepository{db: db}
}

func (r *actionRepository) Create(ctx context.Context, action *models.Action) error {
	return translate(GetDB(ctx, r.db).Create(action).Error)
}

func (r *actionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Action, error) {
	var action models.Action
	if err := GetDB(ctx, r.db).First(&action, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &action, nil
}

func (r *actionRepository) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]models.Action, error) {
	var actions []models.Action
	err := GetDB(ctx, r.db).
		Where("message_id = ?", messageID).
		Order("created_at DESC").
		Find(&actions).Error
	return actions, translate(err)
}

func (r *actionRepository) ListRecent(ctx context.Context, limit int) ([]models.Action, error) {
	var actions []models.Action
	query := GetDB(ctx, r.db).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&actions).Error
	return actions, translate(err)
}

func (r *actionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.ActionStatus, approvedAt *time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	if approvedAt != nil {
		updates["approved_at"] = *approvedAt
	}
	res := GetDB(ctx, r.db).
		Model(&models.Action{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *actionRepository) UpdatePayload(ctx context.Context, id uuid.UUID, payload []byte) error {
	res := GetDB(ctx, r.db).
		Model(&models.Action{}).
		Where("id = ?", id).
		Update("action_data", datatypes.JSON(payload))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
