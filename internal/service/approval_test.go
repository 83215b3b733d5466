package service

import (
	"context"
	"testing"
	"time"

	"whatsapp-agent/backend/internal/models"
	"whatsapp-agent/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type approvalFixture struct {
	store *repository.Store
	svc   *ApprovalService
	clock time.Time
	msg   *models.Message
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()
	f := &approvalFixture{
		store: repository.NewMemoryStore(),
		clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewApprovalService(f.store, 0, testLogger())
	f.svc.now = func() time.Time { return f.clock }

	f.msg = &models.Message{WAMessageID: "wamid.1", GroupID: "15550001", SenderPhone: "15550001", Content: "the app is broken", Category: models.CategoryError}
	require.NoError(t, f.store.Messages.Create(context.Background(), f.msg))
	return f
}

func (f *approvalFixture) create(t *testing.T, draft string, ttl time.Duration) *models.ApprovalRequest {
	t.Helper()
	req, result, err := f.svc.CreateApprovalRequest(context.Background(), f.msg, draft, f.msg.GroupID, ttl)
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)
	return req
}

func (f *approvalFixture) status(t *testing.T, req *models.ApprovalRequest) models.ActionStatus {
	t.Helper()
	action, err := f.store.Actions.FindByID(context.Background(), req.ActionID)
	require.NoError(t, err)
	return action.Status
}

func TestCreateApprovalRequest(t *testing.T) {
	f := newApprovalFixture(t)
	req := f.create(t, "Sorry about that", UseDefaultTTL)

	assert.Equal(t, f.clock.Add(models.DefaultApprovalTTL), req.ExpiresAt)
	assert.Equal(t, "Sorry about that", req.DraftMessage)
	assert.Equal(t, f.msg.GroupID, req.TargetGroup)
	require.NotNil(t, req.Action)
	assert.Equal(t, models.ActionDraftReply, req.Action.Kind)
	assert.Equal(t, models.StatusPendingApproval, req.Action.Status)

	payload, err := req.Action.PayloadMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"draft": "Sorry about that", "target": f.msg.GroupID}, payload)
}

func TestZeroExpiryCreatesExpiredRequest(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	req := f.create(t, "too late already", 0)

	assert.Equal(t, f.clock, req.ExpiresAt)
	assert.Equal(t, models.StatusPendingApproval, f.status(t, req))

	pending, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	result, err := f.svc.Approve(ctx, req.ID)
	assert.ErrorIs(t, err, ErrApprovalExpired)
	assert.Equal(t, ResultUnchanged, result)
	assert.Equal(t, models.StatusPendingApproval, f.status(t, req), "expired requests stay stored unresolved")
}

func TestMarkSentFollowsLifecycle(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	req := f.create(t, "draft", UseDefaultTTL)

	result, err := f.svc.MarkSent(ctx, req.ActionID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, ResultUnchanged, result)

	_, err = f.svc.Reject(ctx, req.ID)
	require.NoError(t, err)
	result, err = f.svc.MarkSent(ctx, req.ActionID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "rejected drafts are never sent")
	assert.Equal(t, ResultUnchanged, result)
}

func TestListPendingExcludesExpiredAndResolved(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	short := f.create(t, "short", time.Hour)
	long := f.create(t, "long", 48*time.Hour)
	rejected := f.create(t, "rejected", 48*time.Hour)
	_, err := f.svc.Reject(ctx, rejected.ID)
	require.NoError(t, err)

	pending, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, long.ID, pending[0].ID, "newest first")
	assert.Equal(t, short.ID, pending[1].ID)

	f.clock = f.clock.Add(2 * time.Hour)
	pending, err = f.svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, long.ID, pending[0].ID)

	stored, err := f.store.Approvals.FindByID(ctx, short.ID)
	require.NoError(t, err, "expired requests stay stored")
	assert.Equal(t, short.ID, stored.ID)

	latest, err := f.svc.LatestPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, long.ID, latest.ID)
}

func TestApproveIsIdempotent(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	req := f.create(t, "draft", UseDefaultTTL)

	result, err := f.svc.Approve(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)

	action, err := f.store.Actions.FindByID(ctx, req.ActionID)
	require.NoError(t, err)
	require.NotNil(t, action.ApprovedAt)
	firstStamp := *action.ApprovedAt
	assert.Equal(t, f.clock, firstStamp)

	f.clock = f.clock.Add(time.Minute)
	result, err = f.svc.Approve(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, ResultUnchanged, result)

	action, err = f.store.Actions.FindByID(ctx, req.ActionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, action.Status)
	assert.Equal(t, firstStamp, *action.ApprovedAt, "second approve must not re-stamp")
}

func TestApproveExpired(t *testing.T) {
	f := newApprovalFixture(t)
	req := f.create(t, "draft", time.Hour)
	f.clock = f.clock.Add(time.Hour)

	result, err := f.svc.Approve(context.Background(), req.ID)
	assert.ErrorIs(t, err, ErrApprovalExpired)
	assert.Equal(t, ResultUnchanged, result)
	assert.Equal(t, models.StatusPendingApproval, f.status(t, req))
}

func TestApproveAfterReject(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	req := f.create(t, "draft", UseDefaultTTL)

	result, err := f.svc.Reject(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)

	result, err = f.svc.Reject(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, ResultUnchanged, result)

	result, err = f.svc.Approve(ctx, req.ID)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Equal(t, ResultUnchanged, result)
	assert.Equal(t, models.StatusRejected, f.status(t, req))
}

func TestRejectAfterApprove(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	req := f.create(t, "draft", UseDefaultTTL)

	_, err := f.svc.Approve(ctx, req.ID)
	require.NoError(t, err)

	result, err := f.svc.Reject(ctx, req.ID)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Equal(t, ResultUnchanged, result)
}

func TestMissingApproval(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	result, err := f.svc.Approve(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, ResultNotFound, result)

	result, err = f.svc.Reject(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, ResultNotFound, result)

	result, err = f.svc.MarkSent(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, ResultNotFound, result)
}

func TestMarkSent(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	req := f.create(t, "draft", UseDefaultTTL)

	result, err := f.svc.MarkSent(ctx, req.ActionID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending cannot go straight to sent")
	assert.Equal(t, ResultUnchanged, result)

	_, err = f.svc.Approve(ctx, req.ID)
	require.NoError(t, err)

	result, err = f.svc.MarkSent(ctx, req.ActionID)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)

	result, err = f.svc.MarkSent(ctx, req.ActionID)
	require.NoError(t, err)
	assert.Equal(t, ResultUnchanged, result)
	assert.Equal(t, models.StatusSent, f.status(t, req))

	result, err = f.svc.Approve(ctx, req.ID)
	require.NoError(t, err, "sent is past approved")
	assert.Equal(t, ResultUnchanged, result)

	result, err = f.svc.Reject(ctx, req.ID)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Equal(t, ResultUnchanged, result)
}

func TestUpdateDraft(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	req := f.create(t, "draft", UseDefaultTTL)

	result, err := f.svc.UpdateDraft(ctx, req.ID, "Better draft")
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)

	found, err := f.svc.Find(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Better draft", found.DraftMessage)
	payload, err := found.Action.PayloadMap()
	require.NoError(t, err)
	assert.Equal(t, "Better draft", payload["draft"])

	_, err = f.svc.UpdateDraft(ctx, req.ID, "  ")
	assert.ErrorIs(t, err, ErrMalformedInput)

	f.clock = f.clock.Add(models.DefaultApprovalTTL)
	_, err = f.svc.UpdateDraft(ctx, req.ID, "Too late")
	assert.ErrorIs(t, err, ErrApprovalExpired)
}

func TestApprovalUnavailable(t *testing.T) {
	svc := NewApprovalService(repository.NewUnavailableStore(), 0, testLogger())
	ctx := context.Background()
	msg := &models.Message{ID: uuid.New()}

	req, result, err := svc.CreateApprovalRequest(ctx, msg, "draft", "group", 0)
	require.NoError(t, err)
	assert.Nil(t, req)
	assert.Equal(t, ResultUnavailable, result)

	result, err = svc.Approve(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, ResultUnavailable, result, "unavailable is not reported as not found")

	result, err = svc.Reject(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, ResultUnavailable, result)

	result, err = svc.MarkSent(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, ResultUnavailable, result)

	_, err = svc.ListPending(ctx)
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
}
