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

func TestTrackingHistory(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewTrackingService(store, testLogger())
	ctx := context.Background()

	var last *models.Message
	for i, group := range []string{"g1", "g2", "g1"} {
		msg := &models.Message{WAMessageID: uuid.NewString(), GroupID: group, SenderPhone: "1", Content: "m", CreatedAt: time.Unix(int64(i), 0)}
		stored, result, err := svc.LogMessage(ctx, msg)
		require.NoError(t, err)
		require.Equal(t, ResultApplied, result)
		assert.Equal(t, models.CategoryUnknown, stored.Category)
		last = stored
	}

	all, err := svc.MessageHistory(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, last.ID, all[0].ID)

	g1, err := svc.MessageHistory(ctx, "g1", 1)
	require.NoError(t, err)
	require.Len(t, g1, 1)
	assert.Equal(t, last.ID, g1[0].ID)

	_, result, err := svc.LogAction(ctx, last.ID, models.ActionForwardDev, ForwardDev{Reason: "crash", Priority: PriorityHigh}, models.StatusPendingApproval)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)

	actions, err := svc.ActionsForMessage(ctx, last.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	payload, err := actions[0].PayloadMap()
	require.NoError(t, err)
	assert.Equal(t, "crash", payload["reason"])

	recent, err := svc.RecentActions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	_, result, err = svc.LogAction(ctx, uuid.New(), models.ActionForwardDev, nil, models.StatusPendingApproval)
	require.NoError(t, err)
	assert.Equal(t, ResultNotFound, result)

	_, err = svc.ActionsForMessage(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTrackingDuplicateMessage(t *testing.T) {
	svc := NewTrackingService(repository.NewMemoryStore(), testLogger())
	ctx := context.Background()

	first, _, err := svc.LogMessage(ctx, &models.Message{WAMessageID: "wamid.dup", GroupID: "g", SenderPhone: "1", Content: "a"})
	require.NoError(t, err)

	second, result, err := svc.LogMessage(ctx, &models.Message{WAMessageID: "wamid.dup", GroupID: "g", SenderPhone: "1", Content: "a"})
	require.NoError(t, err)
	assert.Equal(t, ResultUnchanged, result)
	assert.Equal(t, first.ID, second.ID)
}

func TestTrackingUnavailable(t *testing.T) {
	svc := NewTrackingService(repository.NewUnavailableStore(), testLogger())
	ctx := context.Background()

	_, result, err := svc.LogMessage(ctx, &models.Message{WAMessageID: "x"})
	require.NoError(t, err)
	assert.Equal(t, ResultUnavailable, result)

	_, err = svc.MessageHistory(ctx, "", 10)
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	_, err = svc.RecentActions(ctx, 10)
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
}
