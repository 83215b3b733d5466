package models

import "time"

// Event types published while a message moves through the pipeline
const (
	EventMessageReceived   = "message.received"
	EventMessageClassified = "message.classified"
	EventMessageForwarded  = "message.forwarded"
	EventApprovalCreated   = "approval.created"
	EventApprovalResolved  = "approval.resolved"
	EventReplySent         = "reply.sent"
)

// Event is a pipeline notification for live subscribers
type Event struct {
	Type       string         `json:"type"`
	MessageID  string         `json:"message_id,omitempty"`
	ApprovalID string         `json:"approval_id,omitempty"`
	Category   Category       `json:"category,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	At         time.Time      `json:"at"`
}
