package service

import "whatsapp-agent/backend/internal/models"

// Proposal is an action suggested by the generator. The set of implementations is closed.
type Proposal interface {
	Kind() models.ActionKind
	isProposal()
}

// DraftReply proposes a reply to the sender
type DraftReply struct {
	Reply           string `json:"reply"`
	OriginalMessage string `json:"original_message"`
	Sender          string `json:"sender"`
}

// ForwardDev proposes escalating the message to the developers
type ForwardDev struct {
	Reason          string `json:"reason"`
	Priority        string `json:"priority"`
	OriginalMessage string `json:"original_message"`
	Group           string `json:"group"`
}

// ForwardPersonal proposes forwarding the message to a team member's personal number
type ForwardPersonal struct {
	Reason          string `json:"reason"`
	Summary         string `json:"summary"`
	OriginalMessage string `json:"original_message"`
	Sender          string `json:"sender"`
}

func (DraftReply) Kind() models.ActionKind      { return models.ActionDraftReply }
func (ForwardDev) Kind() models.ActionKind      { return models.ActionForwardDev }
func (ForwardPersonal) Kind() models.ActionKind { return models.ActionForwardPersonal }

func (DraftReply) isProposal()      {}
func (ForwardDev) isProposal()      {}
func (ForwardPersonal) isProposal() {}

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// truncate returns at most n runes of s
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
