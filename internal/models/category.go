package models

import "strings"

// Category is the classification label assigned to an inbound message
type Category string

const (
	CategoryComplaint Category = "complaint"
	CategoryError     Category = "error"
	CategoryCasual    Category = "casual"
	CategoryUnknown   Category = "unknown"
)

// ParseCategory maps free-form model output onto a category.
// Anything that is not exactly one of the three named categories is unknown.
func ParseCategory(raw string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryComplaint:
		return CategoryComplaint
	case CategoryError:
		return CategoryError
	case CategoryCasual:
		return CategoryCasual
	default:
		return CategoryUnknown
	}
}

// RequiresApproval reports whether generated replies for this category go through human review
func (c Category) RequiresApproval() bool {
	return c == CategoryComplaint || c == CategoryError
}

// ActionKind identifies what an Action does
type ActionKind string

const (
	ActionDraftReply      ActionKind = "draft_reply"
	ActionForwardDev      ActionKind = "forward_dev"
	ActionForwardPersonal ActionKind = "forward_personal"
	ActionSendReply       ActionKind = "send_reply"
)

// ActionStatus is the lifecycle state of an Action
type ActionStatus string

const (
	StatusPendingApproval ActionStatus = "pending_approval"
	StatusApproved        ActionStatus = "approved"
	StatusRejected        ActionStatus = "rejected"
	StatusSent            ActionStatus = "sent"
)

// CanTransition reports whether the lifecycle allows moving from s to next.
// Staying in the same status is not a transition.
func (s ActionStatus) CanTransition(next ActionStatus) bool {
	switch s {
	case StatusPendingApproval:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusSent
	default:
		return false
	}
}
