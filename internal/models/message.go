package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents one inbound chat message
type Message struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	WAMessageID string    `json:"wa_message_id" gorm:"uniqueIndex;not null"`
	GroupID     string    `json:"group_id" gorm:"index;not null"`
	GroupName   *string   `json:"group_name,omitempty"`
	SenderPhone string    `json:"sender_phone" gorm:"not null"`
	SenderName  *string   `json:"sender_name,omitempty"`
	Content     string    `json:"content" gorm:"type:text;not null"`
	Category    Category  `json:"category" gorm:"type:varchar(20);not null;default:unknown"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`

	Actions []Action `json:"actions,omitempty" gorm:"foreignKey:MessageID"`
}

// DisplaySender returns the sender's display name, falling back to the phone number
func (m *Message) DisplaySender() string {
	if m.SenderName != nil && *m.SenderName != "" {
		return *m.SenderName
	}
	return m.SenderPhone
}

// ParsedMessage is a single text message extracted from an inbound webhook delivery
type ParsedMessage struct {
	MessageID  string    `json:"message_id" validate:"required"`
	FromPhone  string    `json:"from_phone" validate:"required"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text" validate:"required"`
	Timestamp  time.Time `json:"timestamp"`
}
