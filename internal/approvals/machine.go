// Package approvals gates side-effecting agent actions behind human
// decisions. Actions extracted from an agent message either run
// immediately or become durable Approval records; a thread holds at most
// one pending approval at a time, with later ones queued behind it.
package approvals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowentxo/agentinbox/internal/actions"
	"github.com/flowentxo/agentinbox/internal/notify"
	"github.com/flowentxo/agentinbox/internal/store"
	"github.com/flowentxo/agentinbox/pkg/models"
)

// ErrNotPending means the approval was already resolved, expired, or is
// still queued; the decision is rejected without side effects.
var ErrNotPending = errors.New("approval is not pending")

// SystemResolverID marks resolutions performed by the expiry sweep.
const SystemResolverID = "system"

// ActionRunner executes an approved or ungated action.
type ActionRunner interface {
	Run(ctx context.Context, threadID string, action *actions.ToolAction) error
}

// LogRunner is an ActionRunner that only records the execution. It stands
// in until real action backends (CRM, calendar, export) are wired up.
type LogRunner struct {
	Logger *slog.Logger
}

func (r *LogRunner) Run(ctx context.Context, threadID string, action *actions.ToolAction) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("executing action",
		"thread_id", threadID,
		"action_id", action.ID,
		"action_type", action.Type)
	return nil
}

// Machine owns the approval lifecycle for all threads.
type Machine struct {
	store    store.Store
	notifier notify.Notifier
	runner   ActionRunner
	ttl      time.Duration
	logger   *slog.Logger

	// mu serializes gate creation and promotion so the at-most-one
	// pending invariant holds across concurrent turns and resolutions.
	mu sync.Mutex
}

// NewMachine creates the approval machine. ttl bounds how long a pending
// approval stays resolvable; zero disables expiry.
func NewMachine(st store.Store, notifier notify.Notifier, runner ActionRunner, ttl time.Duration, logger *slog.Logger) *Machine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if runner == nil {
		runner = &LogRunner{Logger: logger}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: st, notifier: notifier, runner: runner, ttl: ttl, logger: logger}
}

// Outcome reports what OnAgentMessage did with a finalized agent message.
type Outcome struct {
	// Executed are the ungated actions that ran immediately.
	Executed []actions.ToolAction
	// Pending is the approval now gating the thread, if one was created
	// or already existed.
	Pending *models.Approval
	// Queued are approvals created behind the pending one.
	Queued []*models.Approval
	// Suspended reports whether this call suspended the thread.
	Suspended bool
}

// OnAgentMessage extracts actions from a finalized agent message, runs
// the ungated ones, and converts the rest into approvals. The first
// approval-gated action becomes the thread's pending approval and
// suspends it; any further gated actions queue behind it in order.
func (m *Machine) OnAgentMessage(ctx context.Context, thread *models.Thread, msg *models.Message) (*Outcome, error) {
	extracted := actions.Extract(msg.Content)
	if len(extracted) == 0 {
		return &Outcome{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	outcome := &Outcome{}
	for i := range extracted {
		action := &extracted[i]
		if !action.RequiresApproval() {
			if err := m.runner.Run(ctx, thread.ID, action); err != nil {
				m.logger.Error("action execution failed",
					"thread_id", thread.ID,
					"action_type", action.Type,
					"error", err)
			}
			outcome.Executed = append(outcome.Executed, *action)
			continue
		}

		approval, err := m.createGate(ctx, thread, msg, action, outcome.Pending != nil)
		if err != nil {
			return nil, err
		}
		if approval.Status == models.ApprovalPending {
			outcome.Pending = approval
		} else {
			outcome.Queued = append(outcome.Queued, approval)
		}
	}

	if outcome.Pending == nil {
		return outcome, nil
	}

	// Suspend the thread on the newly pending gate, unless it is already
	// suspended on an earlier one.
	if !thread.State.Suspended() {
		thread.State = models.SuspendedState(outcome.Pending.ID)
		if err := m.store.UpdateThread(ctx, thread); err != nil {
			return nil, fmt.Errorf("suspend thread %s: %w", thread.ID, err)
		}
		outcome.Suspended = true
		m.notifier.ThreadUpdated(thread)
	}
	m.notifier.ApprovalRequested(outcome.Pending)
	return outcome, nil
}

// createGate persists one approval. It becomes pending only when the
// thread has no pending approval yet and none was created earlier in this
// message; otherwise it queues.
func (m *Machine) createGate(ctx context.Context, thread *models.Thread, msg *models.Message, action *actions.ToolAction, havePending bool) (*models.Approval, error) {
	status := models.ApprovalQueued
	if !havePending && !thread.State.Suspended() {
		if _, err := m.store.PendingApproval(ctx, thread.ID); errors.Is(err, store.ErrApprovalNotFound) {
			status = models.ApprovalPending
		} else if err != nil {
			return nil, fmt.Errorf("check pending approval: %w", err)
		}
	}

	actionType := string(action.Type)
	if action.Type == actions.ActionCustom && action.RawType != "" {
		actionType = action.RawType
	}
	approval := &models.Approval{
		ThreadID:   thread.ID,
		MessageID:  msg.ID,
		ActionType: actionType,
		Params:     action.Params,
		Preview:    action.Preview(),
		Status:     status,
	}
	if m.ttl > 0 {
		approval.ExpiresAt = time.Now().Add(m.ttl)
	}
	if err := m.store.CreateApproval(ctx, approval); err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}
	return approval, nil
}

// Resolve applies a human decision to a pending approval. Approving runs
// the gated action exactly once; rejecting discards it. Either way the
// next queued approval (if any) is promoted, otherwise the thread
// reactivates. Returns ErrNotPending when the approval is not currently
// pending.
func (m *Machine) Resolve(ctx context.Context, approvalID string, approve bool, resolverID, comment string) (*models.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(ctx, approvalID, approve, resolverID, comment)
}

func (m *Machine) resolveLocked(ctx context.Context, approvalID string, approve bool, resolverID, comment string) (*models.Approval, error) {
	to := models.ApprovalRejected
	if approve {
		to = models.ApprovalApproved
	}

	approval, err := m.store.TransitionApproval(ctx, approvalID, models.ApprovalPending, to, resolverID, comment)
	if err != nil {
		if errors.Is(err, store.ErrApprovalConflict) {
			return nil, fmt.Errorf("approval %s: %w", approvalID, ErrNotPending)
		}
		return nil, err
	}

	if approve {
		action := &actions.ToolAction{
			ID:     approval.ID,
			Type:   actions.ActionType(approval.ActionType),
			Params: approval.Params,
		}
		if !action.Type.Known() {
			action.Type = actions.ActionCustom
			action.RawType = approval.ActionType
		}
		if err := m.runner.Run(ctx, approval.ThreadID, action); err != nil {
			// The decision stands; the execution failure is surfaced in
			// the thread, not by un-resolving the approval.
			m.logger.Error("approved action failed",
				"approval_id", approval.ID,
				"action_type", approval.ActionType,
				"error", err)
		}
	}

	if err := m.advanceThread(ctx, approval); err != nil {
		return nil, err
	}
	m.notifier.ApprovalResolved(approval)
	return approval, nil
}

// advanceThread promotes the oldest queued approval to pending, or
// reactivates the thread when the queue is empty.
func (m *Machine) advanceThread(ctx context.Context, resolved *models.Approval) error {
	thread, err := m.store.GetThread(ctx, resolved.ThreadID)
	if err != nil {
		return err
	}
	// Only the gate that suspended the thread advances it.
	if !thread.State.Suspended() || thread.State.ApprovalID() != resolved.ID {
		return nil
	}

	queued, err := m.store.QueuedApprovals(ctx, thread.ID)
	if err != nil {
		return err
	}

	if len(queued) > 0 {
		next, err := m.store.TransitionApproval(ctx, queued[0].ID, models.ApprovalQueued, models.ApprovalPending, "", "")
		if err != nil {
			return fmt.Errorf("promote approval %s: %w", queued[0].ID, err)
		}
		thread.State = models.SuspendedState(next.ID)
		if err := m.store.UpdateThread(ctx, thread); err != nil {
			return err
		}
		m.notifier.ThreadUpdated(thread)
		m.notifier.ApprovalRequested(next)
		return nil
	}

	thread.State = models.ActiveState()
	if err := m.store.UpdateThread(ctx, thread); err != nil {
		return err
	}
	m.notifier.ThreadUpdated(thread)
	return nil
}

// ExpireStale rejects every pending approval whose expiry has passed.
// Returns how many were expired.
func (m *Machine) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stale, err := m.store.StalePending(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, approval := range stale {
		if _, err := m.resolveLocked(ctx, approval.ID, false, SystemResolverID, "expired"); err != nil {
			if errors.Is(err, ErrNotPending) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}
