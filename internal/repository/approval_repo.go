package repository

import (
	"context"
	"time"

	"whatsapp-agent/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type approvalRepository struct {
	db *gorm.DB
}

// NewApprovalRepository creates a gorm approval repository
func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, req *models.ApprovalRequest) error {
	return translate(GetDB(ctx, r.db).Create(req).Error)
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r *approvalRepository) pendingQuery(ctx context.Context) *gorm.DB {
	return GetDB(ctx, r.db).
		Model(&models.ApprovalRequest{}).
		Joins("JOIN agent_actions ON agent_actions.id = approval_queue.action_id").
		Where("agent_actions.status = ?", models.StatusPendingApproval)
}

func (r *approvalRepository) ListPending(ctx context.Context, now time.Time) ([]models.ApprovalRequest, error) {
	var requests []models.ApprovalRequest
	err := r.pendingQuery(ctx).
		Where("approval_queue.expires_at > ?", now).
		Preload("Action").
		Order("approval_queue.created_at DESC").
		Find(&requests).Error
	return requests, translate(err)
}

func (r *approvalRepository) CountExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.pendingQuery(ctx).
		Where("approval_queue.expires_at <= ?", now).
		Count(&count).Error
	return count, translate(err)
}

func (r *approvalRepository) UpdateDraft(ctx context.Context, id uuid.UUID, draft string) error {
	res := GetDB(ctx, r.db).
		Model(&models.ApprovalRequest{}).
		Where("id = ?", id).
		Update("draft_message", draft)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
