package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultApprovalTTL is how long a reviewer has to act on a draft
const DefaultApprovalTTL = 24 * time.Hour

// ApprovalRequest gates the dispatch of a single drafted reply
type ApprovalRequest struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ActionID     uuid.UUID `json:"action_id" gorm:"type:uuid;uniqueIndex;not null"`
	DraftMessage string    `json:"draft_message" gorm:"type:text;not null"`
	TargetGroup  string    `json:"target_group" gorm:"not null"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"index;not null"`
	CreatedAt    time.Time `json:"created_at"`

	Action *Action `json:"action,omitempty" gorm:"foreignKey:ActionID"`
}

// TableName overrides the default table name
func (ApprovalRequest) TableName() string {
	return "approval_queue"
}

// IsExpired reports whether the request can no longer be acted on at the given instant
func (r *ApprovalRequest) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// DraftPayload is the action payload stored alongside an approval request
type DraftPayload struct {
	Draft  string `json:"draft"`
	Target string `json:"target"`
}

// ForwardPayload is the action payload recorded for a direct forward
type ForwardPayload struct {
	ForwardedTo string `json:"forwarded_to"`
}
