package repository

import (
	"context"

	"whatsapp-agent/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a gorm message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	return translate(GetDB(ctx, r.db).Create(msg).Error)
}

func (r *messageRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	if err := GetDB(ctx, r.db).First(&msg, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

func (r *messageRepository) FindByWAMessageID(ctx context.Context, waMessageID string) (*models.Message, error) {
	var msg models.Message
	if err := GetDB(ctx, r.db).First(&msg, "wa_message_id = ?", waMessageID).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

func (r *messageRepository) ListByGroup(ctx context.Context, groupID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	query := GetDB(ctx, r.db).Order("created_at DESC")
	if groupID != "" {
		query = query.Where("group_id = ?", groupID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&messages).Error
	return messages, translate(err)
}
