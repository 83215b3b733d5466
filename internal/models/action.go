package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Action is a proposed or recorded unit of outbound work tied to a message
type Action struct {
	ID         uuid.UUID      `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MessageID  uuid.UUID      `json:"message_id" gorm:"type:uuid;index;not null"`
	Kind       ActionKind     `json:"action_type" gorm:"column:action_type;type:varchar(32);not null"`
	Payload    datatypes.JSON `json:"action_data" gorm:"column:action_data;type:jsonb"`
	Status     ActionStatus   `json:"status" gorm:"type:varchar(32);not null;default:pending_approval;index"`
	CreatedAt  time.Time      `json:"created_at" gorm:"index"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty"`

	Message *Message `json:"-" gorm:"foreignKey:MessageID"`
}

// TableName overrides the default table name
func (Action) TableName() string {
	return "agent_actions"
}

// PayloadMap decodes the action payload into a generic map
func (a *Action) PayloadMap() (map[string]any, error) {
	out := map[string]any{}
	if len(a.Payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(a.Payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodePayload marshals v into a JSON column value
func EncodePayload(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
