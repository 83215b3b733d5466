package api

import (
	"context"
	"net/http"

	"whatsapp-agent/backend/internal/models"
	"whatsapp-agent/backend/internal/service"
	apperrors "whatsapp-agent/backend/pkg/errors"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ApprovalLister lists open approval requests
type ApprovalLister interface {
	ListPending(ctx context.Context) ([]models.ApprovalRequest, error)
}

// Reviewer resolves approval requests and dispatches approved drafts
type Reviewer interface {
	Approve(ctx context.Context, approvalID uuid.UUID) (*service.ReviewOutcome, error)
	Reject(ctx context.Context, approvalID uuid.UUID) (*service.ReviewOutcome, error)
	Edit(ctx context.Context, approvalID uuid.UUID, draft string) (*service.ReviewOutcome, error)
}

// EditRequest carries a replacement draft
type EditRequest struct {
	Draft string `json:"draft" binding:"required"`
}

// ReviewResponse is returned by approve, reject and edit
type ReviewResponse struct {
	Result   service.WriteResult     `json:"result"`
	Sent     bool                    `json:"sent"`
	Approval *models.ApprovalRequest `json:"approval,omitempty"`
}

// ApprovalHandler exposes the approval queue to administrators
type ApprovalHandler struct {
	approvals ApprovalLister
	reviewer  Reviewer
	logger    *logger.Logger
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(approvals ApprovalLister, reviewer Reviewer, logger *logger.Logger) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals, reviewer: reviewer, logger: logger}
}

// RegisterRoutes registers the approval routes
func (h *ApprovalHandler) RegisterRoutes(router gin.IRoutes, read, write gin.HandlerFunc) {
	router.GET("/approvals", read, h.List)
	router.POST("/approvals/:id/approve", write, h.Approve)
	router.POST("/approvals/:id/reject", write, h.Reject)
	router.POST("/approvals/:id/edit", write, h.Edit)
}

// List returns pending, unexpired requests newest first
func (h *ApprovalHandler) List(c *gin.Context) {
	pending, err := h.approvals.ListPending(c.Request.Context())
	if err != nil {
		abort(c, serviceError(err))
		return
	}
	if pending == nil {
		pending = []models.ApprovalRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"approvals": pending, "count": len(pending)})
}

// Approve approves a request and sends its draft
func (h *ApprovalHandler) Approve(c *gin.Context) {
	id, ok := approvalID(c)
	if !ok {
		return
	}
	outcome, err := h.reviewer.Approve(c.Request.Context(), id)
	h.respond(c, outcome, err)
}

// Reject rejects a request
func (h *ApprovalHandler) Reject(c *gin.Context) {
	id, ok := approvalID(c)
	if !ok {
		return
	}
	outcome, err := h.reviewer.Reject(c.Request.Context(), id)
	h.respond(c, outcome, err)
}

// Edit replaces the draft of a request, then approves and sends it
func (h *ApprovalHandler) Edit(c *gin.Context) {
	id, ok := approvalID(c)
	if !ok {
		return
	}
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, apperrors.BadRequestWithDetails("INVALID_REQUEST", "A draft is required", err.Error()))
		return
	}
	outcome, err := h.reviewer.Edit(c.Request.Context(), id, req.Draft)
	h.respond(c, outcome, err)
}

func (h *ApprovalHandler) respond(c *gin.Context, outcome *service.ReviewOutcome, err error) {
	if err != nil {
		abort(c, serviceError(err))
		return
	}
	if appErr := resultError(outcome.Result); appErr != nil {
		abort(c, appErr)
		return
	}
	c.JSON(http.StatusOK, ReviewResponse{
		Result:   outcome.Result,
		Sent:     outcome.Sent,
		Approval: outcome.Approval,
	})
}

func approvalID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abort(c, apperrors.NewBadRequestError("INVALID_ID", "Approval id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}
