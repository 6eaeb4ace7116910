package approvals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flowentxo/agentinbox/internal/actions"
	"github.com/flowentxo/agentinbox/internal/store"
	"github.com/flowentxo/agentinbox/pkg/models"
)

type recordingRunner struct {
	mu  sync.Mutex
	ran []actions.ToolAction
	err error
}

func (r *recordingRunner) Run(ctx context.Context, threadID string, action *actions.ToolAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, *action)
	return r.err
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

type recordingNotifier struct {
	mu        sync.Mutex
	requested []string
	resolved  []string
	updates   int
}

func (n *recordingNotifier) Typing(string, string)                   {}
func (n *recordingNotifier) TextDelta(string, string, string)        {}
func (n *recordingNotifier) MessageComplete(string, *models.Message) {}
func (n *recordingNotifier) ToolCall(string, *models.ToolCallEvent)  {}
func (n *recordingNotifier) ThreadUpdated(*models.Thread) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates++
}
func (n *recordingNotifier) RoutingChanged(string, *models.RoutingDecision) {}
func (n *recordingNotifier) ApprovalRequested(a *models.Approval) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = append(n.requested, a.ID)
}
func (n *recordingNotifier) ApprovalResolved(a *models.Approval) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, a.ID)
}

func newTestMachine(t *testing.T, ttl time.Duration) (*Machine, store.Store, *recordingRunner, *recordingNotifier) {
	t.Helper()
	st := store.NewMemoryStore()
	runner := &recordingRunner{}
	notifier := &recordingNotifier{}
	return NewMachine(st, notifier, runner, ttl, nil), st, runner, notifier
}

func newTestThread(t *testing.T, st store.Store) *models.Thread {
	t.Helper()
	thread := &models.Thread{UserID: "u1", AgentID: "assistant", State: models.ActiveState()}
	if err := st.CreateThread(context.Background(), thread); err != nil {
		t.Fatalf("create thread: %v", err)
	}
	return thread
}

func agentMessage(content string) *models.Message {
	return &models.Message{ID: "m1", Role: models.RoleAgent, Type: models.MessageText, Content: content}
}

func TestOnAgentMessageNoActions(t *testing.T) {
	machine, st, runner, _ := newTestMachine(t, 0)
	thread := newTestThread(t, st)

	outcome, err := machine.OnAgentMessage(context.Background(), thread, agentMessage("plain response"))
	if err != nil {
		t.Fatalf("OnAgentMessage: %v", err)
	}
	if outcome.Pending != nil || len(outcome.Executed) != 0 || len(outcome.Queued) != 0 {
		t.Errorf("outcome = %+v", outcome)
	}
	if runner.count() != 0 {
		t.Error("nothing should have run")
	}
	if thread.State.Suspended() {
		t.Error("thread must stay active")
	}
}

func TestOnAgentMessageUngatedActionRunsImmediately(t *testing.T) {
	machine, st, runner, _ := newTestMachine(t, 0)
	thread := newTestThread(t, st)

	content := `Saving. <action>{"type":"create-record","params":{"entity":"contact"}}</action>`
	outcome, err := machine.OnAgentMessage(context.Background(), thread, agentMessage(content))
	if err != nil {
		t.Fatalf("OnAgentMessage: %v", err)
	}
	if len(outcome.Executed) != 1 || outcome.Pending != nil {
		t.Fatalf("outcome = %+v", outcome)
	}
	if runner.count() != 1 {
		t.Errorf("runner ran %d times, want 1", runner.count())
	}
	if thread.State.Suspended() {
		t.Error("ungated action must not suspend the thread")
	}
}

func TestOnAgentMessageGatedActionSuspends(t *testing.T) {
	machine, st, runner, notifier := newTestMachine(t, time.Hour)
	thread := newTestThread(t, st)

	content := `Exporting. <action>{"type":"export-data","params":{"dataset":"leads"}}</action>`
	outcome, err := machine.OnAgentMessage(context.Background(), thread, agentMessage(content))
	if err != nil {
		t.Fatalf("OnAgentMessage: %v", err)
	}
	if outcome.Pending == nil {
		t.Fatal("expected pending approval")
	}
	if !outcome.Suspended {
		t.Error("expected suspension")
	}
	if runner.count() != 0 {
		t.Error("gated action must not run before approval")
	}
	if outcome.Pending.ExpiresAt.IsZero() {
		t.Error("TTL not applied")
	}

	stored, err := st.GetThread(context.Background(), thread.ID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if !stored.State.Suspended() || stored.State.ApprovalID() != outcome.Pending.ID {
		t.Errorf("thread state = %+v", stored.State)
	}
	if len(notifier.requested) != 1 {
		t.Errorf("approval requested notifications = %d", len(notifier.requested))
	}
}

func TestOnAgentMessageQueuesBehindPending(t *testing.T) {
	machine, st, _, _ := newTestMachine(t, 0)
	thread := newTestThread(t, st)

	content := `<action>{"type":"export-data","params":{}}</action>` +
		`<action>{"type":"send-message","params":{"to":"x"}}</action>` +
		`<action>{"type":"schedule-event","params":{}}</action>`
	outcome, err := machine.OnAgentMessage(context.Background(), thread, agentMessage(content))
	if err != nil {
		t.Fatalf("OnAgentMessage: %v", err)
	}
	if outcome.Pending == nil || len(outcome.Queued) != 2 {
		t.Fatalf("outcome = %+v", outcome)
	}

	// At most one pending per thread.
	pending, err := st.PendingApproval(context.Background(), thread.ID)
	if err != nil {
		t.Fatalf("PendingApproval: %v", err)
	}
	if pending.ID != outcome.Pending.ID {
		t.Error("stored pending mismatch")
	}
	queued, err := st.QueuedApprovals(context.Background(), thread.ID)
	if err != nil {
		t.Fatalf("QueuedApprovals: %v", err)
	}
	if len(queued) != 2 {
		t.Errorf("queued = %d, want 2", len(queued))
	}
}

func TestResolveApproveRunsActionAndPromotes(t *testing.T) {
	machine, st, runner, notifier := newTestMachine(t, 0)
	thread := newTestThread(t, st)

	content := `<action>{"type":"export-data","params":{"dataset":"leads"}}</action>` +
		`<action>{"type":"send-message","params":{"to":"x"}}</action>`
	outcome, err := machine.OnAgentMessage(context.Background(), thread, agentMessage(content))
	if err != nil {
		t.Fatalf("OnAgentMessage: %v", err)
	}

	resolved, err := machine.Resolve(context.Background(), outcome.Pending.ID, true, "alice", "looks good")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != models.ApprovalApproved {
		t.Errorf("status = %s", resolved.Status)
	}
	if resolved.ResolverID != "alice" || resolved.Comment != "looks good" {
		t.Errorf("resolution metadata = %+v", resolved)
	}
	if resolved.ResolvedAt.IsZero() {
		t.Error("resolved_at not set")
	}
	if runner.count() != 1 {
		t.Errorf("approved action ran %d times, want exactly once", runner.count())
	}

	// The queued approval is promoted and the thread stays suspended on it.
	stored, _ := st.GetThread(context.Background(), thread.ID)
	if !stored.State.Suspended() {
		t.Fatal("thread must stay suspended while the queue is non-empty")
	}
	promoted, err := st.PendingApproval(context.Background(), thread.ID)
	if err != nil {
		t.Fatalf("PendingApproval after promote: %v", err)
	}
	if promoted.ID != outcome.Queued[0].ID {
		t.Error("wrong approval promoted")
	}
	if stored.State.ApprovalID() != promoted.ID {
		t.Error("thread not re-gated on the promoted approval")
	}

	// Rejecting the promoted one empties the queue and reactivates.
	if _, err := machine.Resolve(context.Background(), promoted.ID, false, "alice", "not now"); err != nil {
		t.Fatalf("Resolve promoted: %v", err)
	}
	stored, _ = st.GetThread(context.Background(), thread.ID)
	if stored.State.Suspended() {
		t.Error("thread must reactivate once the queue drains")
	}
	if runner.count() != 1 {
		t.Error("rejected action must not run")
	}
	if len(notifier.resolved) != 2 {
		t.Errorf("resolved notifications = %d, want 2", len(notifier.resolved))
	}
}

func TestResolveIsOneWay(t *testing.T) {
	machine, st, _, _ := newTestMachine(t, 0)
	thread := newTestThread(t, st)

	outcome, err := machine.OnAgentMessage(context.Background(), thread,
		agentMessage(`<action>{"type":"export-data","params":{}}</action>`))
	if err != nil {
		t.Fatalf("OnAgentMessage: %v", err)
	}

	if _, err := machine.Resolve(context.Background(), outcome.Pending.ID, false, "alice", ""); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := machine.Resolve(context.Background(), outcome.Pending.ID, true, "bob", ""); !errors.Is(err, ErrNotPending) {
		t.Errorf("second resolve error = %v, want ErrNotPending", err)
	}
}

func TestResolveQueuedApprovalRefused(t *testing.T) {
	machine, st, _, _ := newTestMachine(t, 0)
	thread := newTestThread(t, st)

	outcome, err := machine.OnAgentMessage(context.Background(), thread,
		agentMessage(`<action>{"type":"export-data","params":{}}</action><action>{"type":"send-message","params":{}}</action>`))
	if err != nil {
		t.Fatalf("OnAgentMessage: %v", err)
	}
	if _, err := machine.Resolve(context.Background(), outcome.Queued[0].ID, true, "alice", ""); !errors.Is(err, ErrNotPending) {
		t.Errorf("resolving a queued approval must fail with ErrNotPending, got %v", err)
	}
}

func TestResolveUnknownApproval(t *testing.T) {
	machine, _, _, _ := newTestMachine(t, 0)
	if _, err := machine.Resolve(context.Background(), "nope", true, "alice", ""); !errors.Is(err, store.ErrApprovalNotFound) {
		t.Errorf("error = %v, want ErrApprovalNotFound", err)
	}
}

func TestExpireStaleRejectsAndReactivates(t *testing.T) {
	machine, st, runner, _ := newTestMachine(t, time.Millisecond)
	thread := newTestThread(t, st)

	outcome, err := machine.OnAgentMessage(context.Background(), thread,
		agentMessage(`<action>{"type":"export-data","params":{}}</action>`))
	if err != nil {
		t.Fatalf("OnAgentMessage: %v", err)
	}

	expired, err := machine.ExpireStale(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}

	approval, _ := st.GetApproval(context.Background(), outcome.Pending.ID)
	if approval.Status != models.ApprovalRejected {
		t.Errorf("status = %s, want rejected", approval.Status)
	}
	if approval.ResolverID != SystemResolverID || approval.Comment != "expired" {
		t.Errorf("expiry metadata = %+v", approval)
	}
	if runner.count() != 0 {
		t.Error("expired action must not run")
	}

	stored, _ := st.GetThread(context.Background(), thread.ID)
	if stored.State.Suspended() {
		t.Error("thread must reactivate after expiry")
	}
}
