package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"whatsapp-agent/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// memory keeps every record in process. It backs local development (DATABASE_URL=memory://)
// and the service tests. A failed RunInTx undoes the writes made through its context.
type memory struct {
	mu        sync.RWMutex
	seq       int64
	order     map[uuid.UUID]int64
	messages  map[uuid.UUID]models.Message
	actions   map[uuid.UUID]models.Action
	approvals map[uuid.UUID]models.ApprovalRequest
}

// NewMemoryStore builds a store that keeps all records in memory
func NewMemoryStore() *Store {
	m := &memory{
		order:     map[uuid.UUID]int64{},
		messages:  map[uuid.UUID]models.Message{},
		actions:   map[uuid.UUID]models.Action{},
		approvals: map[uuid.UUID]models.ApprovalRequest{},
	}
	return &Store{
		Messages:  memMessages{m},
		Actions:   memActions{m},
		Approvals: memApprovals{m},
		Tx:        m,
		available: true,
	}
}

type memTxKey struct{}

// memTx journals how to undo each write made inside a transaction
type memTx struct {
	undo []func()
}

func (m *memory) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if _, nested := ctx.Value(memTxKey{}).(*memTx); nested {
		return fn(ctx)
	}
	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		m.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// journal records undo for the write in progress. Callers hold the write lock.
func (m *memory) journal(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func (m *memory) forget(id uuid.UUID, table func(uuid.UUID)) func() {
	return func() {
		table(id)
		delete(m.order, id)
	}
}

// stamp assigns an id, creation time and insertion order. Callers hold the write lock.
func (m *memory) stamp(id *uuid.UUID, createdAt *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now()
	}
	m.seq++
	m.order[*id] = m.seq
}

// newestFirst sorts by creation time then insertion order, both descending
func (m *memory) newestFirst(ids []uuid.UUID, created func(uuid.UUID) time.Time) {
	sort.SliceStable(ids, func(i, j int) bool {
		ci, cj := created(ids[i]), created(ids[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return m.order[ids[i]] > m.order[ids[j]]
	})
}

type memMessages struct{ m *memory }

func (r memMessages) Create(ctx context.Context, msg *models.Message) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.messages {
		if existing.WAMessageID == msg.WAMessageID {
			return ErrDuplicate
		}
	}
	r.m.stamp(&msg.ID, &msg.CreatedAt)
	stored := *msg
	stored.Actions = nil
	r.m.messages[msg.ID] = stored
	r.m.journal(ctx, r.m.forget(msg.ID, func(id uuid.UUID) { delete(r.m.messages, id) }))
	return nil
}

func (r memMessages) FindByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	msg, ok := r.m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &msg, nil
}

func (r memMessages) FindByWAMessageID(_ context.Context, waMessageID string) (*models.Message, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, msg := range r.m.messages {
		if msg.WAMessageID == waMessageID {
			found := msg
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r memMessages) ListByGroup(_ context.Context, groupID string, limit int) ([]models.Message, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var ids []uuid.UUID
	for id, msg := range r.m.messages {
		if groupID == "" || msg.GroupID == groupID {
			ids = append(ids, id)
		}
	}
	r.m.newestFirst(ids, func(id uuid.UUID) time.Time { return r.m.messages[id].CreatedAt })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.m.messages[id])
	}
	return out, nil
}

type memActions struct{ m *memory }

func (r memActions) Create(ctx context.Context, action *models.Action) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.messages[action.MessageID]; !ok {
		return ErrNotFound
	}
	if action.Status == "" {
		action.Status = models.StatusPendingApproval
	}
	r.m.stamp(&action.ID, &action.CreatedAt)
	stored := *action
	stored.Message = nil
	r.m.actions[action.ID] = stored
	r.m.journal(ctx, r.m.forget(action.ID, func(id uuid.UUID) { delete(r.m.actions, id) }))
	return nil
}

func (r memActions) FindByID(_ context.Context, id uuid.UUID) (*models.Action, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	action, ok := r.m.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &action, nil
}

func (r memActions) list(match func(models.Action) bool, limit int) []models.Action {
	var ids []uuid.UUID
	for id, action := range r.m.actions {
		if match(action) {
			ids = append(ids, id)
		}
	}
	r.m.newestFirst(ids, func(id uuid.UUID) time.Time { return r.m.actions[id].CreatedAt })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]models.Action, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.m.actions[id])
	}
	return out
}

func (r memActions) ListByMessage(_ context.Context, messageID uuid.UUID) ([]models.Action, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.list(func(a models.Action) bool { return a.MessageID == messageID }, 0), nil
}

func (r memActions) ListRecent(_ context.Context, limit int) ([]models.Action, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.list(func(models.Action) bool { return true }, limit), nil
}

func (r memActions) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.ActionStatus, approvedAt *time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	action, ok := r.m.actions[id]
	if !ok || action.Status != from {
		return false, nil
	}
	previous := action
	r.m.journal(ctx, func() { r.m.actions[id] = previous })
	action.Status = to
	if approvedAt != nil {
		stamped := *approvedAt
		action.ApprovedAt = &stamped
	}
	r.m.actions[id] = action
	return true, nil
}

func (r memActions) UpdatePayload(ctx context.Context, id uuid.UUID, payload []byte) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	action, ok := r.m.actions[id]
	if !ok {
		return ErrNotFound
	}
	previous := action
	r.m.journal(ctx, func() { r.m.actions[id] = previous })
	action.Payload = datatypes.JSON(append([]byte(nil), payload...))
	r.m.actions[id] = action
	return nil
}

type memApprovals struct{ m *memory }

func (r memApprovals) Create(ctx context.Context, req *models.ApprovalRequest) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.actions[req.ActionID]; !ok {
		return ErrNotFound
	}
	for _, existing := range r.m.approvals {
		if existing.ActionID == req.ActionID {
			return ErrDuplicate
		}
	}
	r.m.stamp(&req.ID, &req.CreatedAt)
	stored := *req
	stored.Action = nil
	r.m.approvals[req.ID] = stored
	r.m.journal(ctx, r.m.forget(req.ID, func(id uuid.UUID) { delete(r.m.approvals, id) }))
	return nil
}

func (r memApprovals) FindByID(_ context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	req, ok := r.m.approvals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &req, nil
}

func (r memApprovals) pending(now time.Time, open bool) []uuid.UUID {
	var ids []uuid.UUID
	for id, req := range r.m.approvals {
		action, ok := r.m.actions[req.ActionID]
		if !ok || action.Status != models.StatusPendingApproval {
			continue
		}
		if req.IsExpired(now) != open {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r memApprovals) ListPending(_ context.Context, now time.Time) ([]models.ApprovalRequest, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	ids := r.pending(now, true)
	r.m.newestFirst(ids, func(id uuid.UUID) time.Time { return r.m.approvals[id].CreatedAt })
	out := make([]models.ApprovalRequest, 0, len(ids))
	for _, id := range ids {
		req := r.m.approvals[id]
		action := r.m.actions[req.ActionID]
		req.Action = &action
		out = append(out, req)
	}
	return out, nil
}

func (r memApprovals) CountExpiredPending(_ context.Context, now time.Time) (int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return int64(len(r.pending(now, false))), nil
}

func (r memApprovals) UpdateDraft(ctx context.Context, id uuid.UUID, draft string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	req, ok := r.m.approvals[id]
	if !ok {
		return ErrNotFound
	}
	previous := req
	r.m.journal(ctx, func() { r.m.approvals[id] = previous })
	req.DraftMessage = draft
	r.m.approvals[id] = req
	return nil
}
