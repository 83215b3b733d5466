package repository

import (
	"context"
	"errors"
	"time"

	"whatsapp-agent/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup matches no record
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key is already taken
	ErrDuplicate = errors.New("duplicate record")
	// ErrUnavailable is returned by every operation when no persistence backend is configured
	ErrUnavailable = errors.New("persistence unavailable")
)

// MessageRepository stores inbound messages
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	FindByWAMessageID(ctx context.Context, waMessageID string) (*models.Message, error)
	// ListByGroup returns messages newest first. An empty groupID lists every group.
	ListByGroup(ctx context.Context, groupID string, limit int) ([]models.Message, error)
}

// ActionRepository stores actions and their lifecycle status
type ActionRepository interface {
	Create(ctx context.Context, action *models.Action) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Action, error)
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]models.Action, error)
	ListRecent(ctx context.Context, limit int) ([]models.Action, error)
	// UpdateStatus moves an action from one status to another and reports whether a row changed.
	// The update only applies while the stored status still equals from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.ActionStatus, approvedAt *time.Time) (bool, error)
	UpdatePayload(ctx context.Context, id uuid.UUID, payload []byte) error
}

// ApprovalRepository stores approval requests
type ApprovalRepository interface {
	Create(ctx context.Context, req *models.ApprovalRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error)
	// ListPending returns open requests: action still pending and expiry after now, newest first
	ListPending(ctx context.Context, now time.Time) ([]models.ApprovalRequest, error)
	CountExpiredPending(ctx context.Context, now time.Time) (int64, error)
	UpdateDraft(ctx context.Context, id uuid.UUID, draft string) error
}

// Store groups the repositories the pipeline needs
type Store struct {
	Messages  MessageRepository
	Actions   ActionRepository
	Approvals ApprovalRepository
	Tx        TransactionManager

	available bool
}

// NewGormStore builds a store backed by the given database
func NewGormStore(db *gorm.DB) *Store {
	return &Store{
		Messages:  NewMessageRepository(db),
		Actions:   NewActionRepository(db),
		Approvals: NewApprovalRepository(db),
		Tx:        NewTransactionManager(db),
		available: true,
	}
}

// NewUnavailableStore builds a store whose operations all fail with ErrUnavailable
func NewUnavailableStore() *Store {
	return &Store{
		Messages:  unavailableMessages{},
		Actions:   unavailableActions{},
		Approvals: unavailableApprovals{},
		Tx:        unavailableTx{},
	}
}

// Available reports whether writes can be persisted
func (s *Store) Available() bool {
	return s != nil && s.available
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// AutoMigrate creates or updates the pipeline tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Message{}, &models.Action{}, &models.ApprovalRequest{})
}
