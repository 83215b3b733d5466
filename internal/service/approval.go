package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"whatsapp-agent/backend/internal/models"
	"whatsapp-agent/backend/internal/repository"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/google/uuid"
)

// UseDefaultTTL asks CreateApprovalRequest for the service's configured expiry
const UseDefaultTTL time.Duration = -1

// ApprovalService manages the review lifecycle of drafted replies
type ApprovalService struct {
	store *repository.Store
	ttl   time.Duration
	now   func() time.Time
	log   *logger.Logger
}

// NewApprovalService creates a new approval service. A non-positive ttl uses models.DefaultApprovalTTL.
func NewApprovalService(store *repository.Store, ttl time.Duration, log *logger.Logger) *ApprovalService {
	if ttl <= 0 {
		ttl = models.DefaultApprovalTTL
	}
	return &ApprovalService{store: store, ttl: ttl, now: time.Now, log: log}
}

// TTL returns the default expiry applied to new requests
func (s *ApprovalService) TTL() time.Duration {
	return s.ttl
}

// CreateApprovalRequest records a pending draft_reply action and its approval request together.
// A negative expiresIn uses the service TTL; zero creates a request that is already expired.
func (s *ApprovalService) CreateApprovalRequest(ctx context.Context, msg *models.Message, draft, target string, expiresIn time.Duration) (*models.ApprovalRequest, WriteResult, error) {
	if !s.store.Available() {
		s.log.Warn("Persistence unavailable, approval request not stored", "message_id", msg.ID)
		return nil, ResultUnavailable, nil
	}
	if expiresIn < 0 {
		expiresIn = s.ttl
	}

	payload, err := models.EncodePayload(models.DraftPayload{Draft: draft, Target: target})
	if err != nil {
		return nil, ResultUnchanged, fmt.Errorf("encode draft payload: %w", err)
	}

	now := s.now()
	action := &models.Action{
		MessageID: msg.ID,
		Kind:      models.ActionDraftReply,
		Payload:   payload,
		Status:    models.StatusPendingApproval,
	}
	req := &models.ApprovalRequest{
		DraftMessage: draft,
		TargetGroup:  target,
		ExpiresAt:    now.Add(expiresIn),
	}

	err = s.store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Actions.Create(txCtx, action); err != nil {
			return fmt.Errorf("create action: %w", err)
		}
		req.ActionID = action.ID
		if err := s.store.Approvals.Create(txCtx, req); err != nil {
			return fmt.Errorf("create approval request: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrUnavailable) {
			return nil, ResultUnavailable, nil
		}
		return nil, ResultUnchanged, err
	}

	req.Action = action
	approvalTransitionsCounter.WithLabelValues(string(models.StatusPendingApproval)).Inc()
	s.log.Info("Approval request created", "approval_id", req.ID, "action_id", action.ID, "expires_at", req.ExpiresAt)
	return req, ResultApplied, nil
}

// ListPending returns open requests, newest first. Expired requests are excluded but stay stored.
func (s *ApprovalService) ListPending(ctx context.Context) ([]models.ApprovalRequest, error) {
	if !s.store.Available() {
		return nil, ErrPersistenceUnavailable
	}
	return s.store.Approvals.ListPending(ctx, s.now())
}

// LatestPending returns the most recent open request, or nil when there is none
func (s *ApprovalService) LatestPending(ctx context.Context) (*models.ApprovalRequest, error) {
	pending, err := s.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return &pending[0], nil
}

// Find returns a request with its action loaded
func (s *ApprovalService) Find(ctx context.Context, approvalID uuid.UUID) (*models.ApprovalRequest, error) {
	if !s.store.Available() {
		return nil, ErrPersistenceUnavailable
	}
	req, action, err := s.load(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	req.Action = action
	return req, nil
}

// Approve moves a pending request to approved. Approving an approved or sent request is a no-op.
func (s *ApprovalService) Approve(ctx context.Context, approvalID uuid.UUID) (WriteResult, error) {
	return s.resolve(ctx, approvalID, models.StatusApproved)
}

// Reject moves a pending request to rejected. Rejecting twice is a no-op.
func (s *ApprovalService) Reject(ctx context.Context, approvalID uuid.UUID) (WriteResult, error) {
	return s.resolve(ctx, approvalID, models.StatusRejected)
}

func (s *ApprovalService) resolve(ctx context.Context, approvalID uuid.UUID, to models.ActionStatus) (WriteResult, error) {
	if !s.store.Available() {
		return ResultUnavailable, nil
	}

	req, action, err := s.load(ctx, approvalID)
	if err != nil {
		return s.lookupResult(err)
	}

	now := s.now()
	for attempt := 0; attempt < 2; attempt++ {
		switch {
		case action.Status == to, to == models.StatusApproved && action.Status == models.StatusSent:
			return ResultUnchanged, nil
		case !action.Status.CanTransition(to):
			return ResultUnchanged, fmt.Errorf("%w: action is %s", ErrAlreadyResolved, action.Status)
		case req.IsExpired(now):
			return ResultUnchanged, ErrApprovalExpired
		}

		var approvedAt *time.Time
		if to == models.StatusApproved {
			approvedAt = &now
		}
		changed, err := s.store.Actions.UpdateStatus(ctx, action.ID, models.StatusPendingApproval, to, approvedAt)
		if err != nil {
			return s.lookupResult(err)
		}
		if changed {
			approvalTransitionsCounter.WithLabelValues(string(to)).Inc()
			s.log.Info("Approval resolved", "approval_id", approvalID, "action_id", action.ID, "status", to)
			return ResultApplied, nil
		}

		// lost a race with another resolver; judge against the stored status
		action, err = s.store.Actions.FindByID(ctx, action.ID)
		if err != nil {
			return s.lookupResult(err)
		}
	}
	return ResultUnchanged, fmt.Errorf("%w: action is %s", ErrAlreadyResolved, action.Status)
}

// MarkSent records that an approved draft was dispatched
func (s *ApprovalService) MarkSent(ctx context.Context, actionID uuid.UUID) (WriteResult, error) {
	if !s.store.Available() {
		return ResultUnavailable, nil
	}

	action, err := s.store.Actions.FindByID(ctx, actionID)
	if err != nil {
		return s.lookupResult(err)
	}
	if action.Status == models.StatusSent {
		return ResultUnchanged, nil
	}
	if !action.Status.CanTransition(models.StatusSent) {
		return ResultUnchanged, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, action.Status, models.StatusSent)
	}

	changed, err := s.store.Actions.UpdateStatus(ctx, actionID, models.StatusApproved, models.StatusSent, nil)
	if err != nil {
		return s.lookupResult(err)
	}
	if !changed {
		return ResultUnchanged, nil
	}
	approvalTransitionsCounter.WithLabelValues(string(models.StatusSent)).Inc()
	return ResultApplied, nil
}

// UpdateDraft replaces the draft text of a pending, unexpired request
func (s *ApprovalService) UpdateDraft(ctx context.Context, approvalID uuid.UUID, draft string) (WriteResult, error) {
	if !s.store.Available() {
		return ResultUnavailable, nil
	}
	if strings.TrimSpace(draft) == "" {
		return ResultUnchanged, fmt.Errorf("%w: empty draft", ErrMalformedInput)
	}

	req, action, err := s.load(ctx, approvalID)
	if err != nil {
		return s.lookupResult(err)
	}
	if action.Status != models.StatusPendingApproval {
		return ResultUnchanged, fmt.Errorf("%w: action is %s", ErrAlreadyResolved, action.Status)
	}
	if req.IsExpired(s.now()) {
		return ResultUnchanged, ErrApprovalExpired
	}
	if req.DraftMessage == draft {
		return ResultUnchanged, nil
	}

	payload, err := models.EncodePayload(models.DraftPayload{Draft: draft, Target: req.TargetGroup})
	if err != nil {
		return ResultUnchanged, fmt.Errorf("encode draft payload: %w", err)
	}
	err = s.store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Approvals.UpdateDraft(txCtx, req.ID, draft); err != nil {
			return err
		}
		return s.store.Actions.UpdatePayload(txCtx, action.ID, payload)
	})
	if err != nil {
		return s.lookupResult(err)
	}
	s.log.Info("Draft updated", "approval_id", approvalID)
	return ResultApplied, nil
}

func (s *ApprovalService) load(ctx context.Context, approvalID uuid.UUID) (*models.ApprovalRequest, *models.Action, error) {
	req, err := s.store.Approvals.FindByID(ctx, approvalID)
	if err != nil {
		return nil, nil, err
	}
	action, err := s.store.Actions.FindByID(ctx, req.ActionID)
	if err != nil {
		return nil, nil, err
	}
	return req, action, nil
}

func (s *ApprovalService) lookupResult(err error) (WriteResult, error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ResultNotFound, nil
	case errors.Is(err, repository.ErrUnavailable):
		return ResultUnavailable, nil
	default:
		return ResultUnchanged, err
	}
}
