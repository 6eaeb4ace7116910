package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowentxo/agentinbox/pkg/models"
)

// maxMessagesPerThread bounds per-thread history to prevent unbounded
// memory growth; old messages are trimmed past the limit.
const maxMessagesPerThread = 1000

// MemoryStore provides an in-memory Store implementation for testing and
// local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	threads   map[string]*models.Thread
	messages  map[string][]*models.Message
	approvals map[string]*models.Approval
}

// NewMemoryStore creates a new in-memory inbox store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:   map[string]*models.Thread{},
		messages:  map[string][]*models.Message{},
		approvals: map[string]*models.Approval{},
	}
}

func (m *MemoryStore) CreateThread(ctx context.Context, thread *models.Thread) error {
	if thread == nil {
		return errors.New("thread is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneThread(thread)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = clone.CreatedAt
	// Reflect generated fields back to caller.
	thread.ID = clone.ID
	thread.CreatedAt = clone.CreatedAt
	thread.UpdatedAt = clone.UpdatedAt
	m.threads[clone.ID] = clone
	return nil
}

func (m *MemoryStore) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	thread, ok := m.threads[id]
	if !ok {
		return nil, ErrThreadNotFound
	}
	return cloneThread(thread), nil
}

func (m *MemoryStore) UpdateThread(ctx context.Context, thread *models.Thread) error {
	if thread == nil {
		return errors.New("thread is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.threads[thread.ID]
	if !ok {
		return ErrThreadNotFound
	}
	clone := cloneThread(thread)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	m.threads[clone.ID] = clone
	thread.UpdatedAt = clone.UpdatedAt
	return nil
}

func (m *MemoryStore) ListThreads(ctx context.Context, opts ListOptions) ([]*models.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.Thread, 0, len(m.threads))
	for _, thread := range m.threads {
		if opts.UserID != "" && thread.UserID != opts.UserID {
			continue
		}
		if !opts.IncludeArchived && thread.State.Archived() {
			continue
		}
		result = append(result, cloneThread(thread))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActivityAt.After(result[j].LastActivityAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, threadID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	thread, ok := m.threads[threadID]
	if !ok {
		return ErrThreadNotFound
	}

	clone := cloneMessage(msg)
	clone.ThreadID = threadID
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	msg.ID = clone.ID
	msg.ThreadID = clone.ThreadID
	msg.CreatedAt = clone.CreatedAt

	history := append(m.messages[threadID], clone)
	if len(history) > maxMessagesPerThread {
		history = history[len(history)-maxMessagesPerThread:]
	}
	m.messages[threadID] = history

	thread.MessageCount++
	if clone.Role == models.RoleAgent {
		thread.UnreadCount++
	}
	thread.LastActivityAt = clone.CreatedAt
	thread.UpdatedAt = clone.CreatedAt
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, threadID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.threads[threadID]; !ok {
		return nil, ErrThreadNotFound
	}
	history := m.messages[threadID]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	result := make([]*models.Message, 0, len(history))
	for _, msg := range history {
		result = append(result, cloneMessage(msg))
	}
	return result, nil
}

func (m *MemoryStore) CreateApproval(ctx context.Context, approval *models.Approval) error {
	if approval == nil {
		return errors.New("approval is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneApproval(approval)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	approval.ID = clone.ID
	approval.CreatedAt = clone.CreatedAt
	m.approvals[clone.ID] = clone
	return nil
}

func (m *MemoryStore) GetApproval(ctx context.Context, id string) (*models.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	approval, ok := m.approvals[id]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	return cloneApproval(approval), nil
}

func (m *MemoryStore) PendingApproval(ctx context.Context, threadID string) (*models.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, approval := range m.approvals {
		if approval.ThreadID == threadID && approval.Status == models.ApprovalPending {
			return cloneApproval(approval), nil
		}
	}
	return nil, ErrApprovalNotFound
}

func (m *MemoryStore) QueuedApprovals(ctx context.Context, threadID string) ([]*models.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.Approval
	for _, approval := range m.approvals {
		if approval.ThreadID == threadID && approval.Status == models.ApprovalQueued {
			result = append(result, cloneApproval(approval))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) TransitionApproval(ctx context.Context, id string, from, to models.ApprovalStatus, resolverID, comment string) (*models.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	approval, ok := m.approvals[id]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	if approval.Status != from {
		return nil, ErrApprovalConflict
	}
	approval.Status = to
	if to.Terminal() {
		approval.ResolverID = resolverID
		approval.Comment = comment
		approval.ResolvedAt = time.Now()
	}
	return cloneApproval(approval), nil
}

func (m *MemoryStore) StalePending(ctx context.Context, before time.Time) ([]*models.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.Approval
	for _, approval := range m.approvals {
		if approval.Status == models.ApprovalPending &&
			!approval.ExpiresAt.IsZero() && approval.ExpiresAt.Before(before) {
			result = append(result, cloneApproval(approval))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneThread(t *models.Thread) *models.Thread {
	clone := *t
	return &clone
}

func cloneMessage(msg *models.Message) *models.Message {
	clone := *msg
	if msg.ToolCalls != nil {
		clone.ToolCalls = make([]models.ToolCall, len(msg.ToolCalls))
		copy(clone.ToolCalls, msg.ToolCalls)
	}
	return &clone
}

func cloneApproval(a *models.Approval) *models.Approval {
	clone := *a
	if a.Params != nil {
		clone.Params = append([]byte(nil), a.Params...)
	}
	return &clone
}
