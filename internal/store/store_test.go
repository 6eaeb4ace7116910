package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowentxo/agentinbox/pkg/models"
)

// runStoreTests exercises the Store contract against an implementation.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	newThread := func(t *testing.T, st Store, userID string) *models.Thread {
		t.Helper()
		thread := &models.Thread{UserID: userID, AgentID: "assistant", State: models.ActiveState()}
		if err := st.CreateThread(ctx, thread); err != nil {
			t.Fatalf("CreateThread: %v", err)
		}
		if thread.ID == "" {
			t.Fatal("thread id not generated")
		}
		return thread
	}

	t.Run("thread round trip", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		thread := newThread(t, st, "u1")
		got, err := st.GetThread(ctx, thread.ID)
		if err != nil {
			t.Fatalf("GetThread: %v", err)
		}
		if got.UserID != "u1" || got.AgentID != "assistant" {
			t.Errorf("got = %+v", got)
		}
		if got.State.Suspended() {
			t.Error("new thread must be active")
		}
	})

	t.Run("get missing thread", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		if _, err := st.GetThread(ctx, "missing"); !errors.Is(err, ErrThreadNotFound) {
			t.Errorf("error = %v, want ErrThreadNotFound", err)
		}
	})

	t.Run("update persists state", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		thread := newThread(t, st, "u1")
		thread.State = models.SuspendedState("appr-1")
		thread.AgentID = "dexter"
		if err := st.UpdateThread(ctx, thread); err != nil {
			t.Fatalf("UpdateThread: %v", err)
		}

		got, err := st.GetThread(ctx, thread.ID)
		if err != nil {
			t.Fatalf("GetThread: %v", err)
		}
		if !got.State.Suspended() || got.State.ApprovalID() != "appr-1" {
			t.Errorf("state = %+v", got.State)
		}
		if got.AgentID != "dexter" {
			t.Errorf("agent = %s", got.AgentID)
		}
	})

	t.Run("list filters archived and user", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		a := newThread(t, st, "u1")
		newThread(t, st, "u2")
		archived := newThread(t, st, "u1")
		archived.State = models.ArchivedState()
		if err := st.UpdateThread(ctx, archived); err != nil {
			t.Fatalf("UpdateThread: %v", err)
		}

		threads, err := st.ListThreads(ctx, ListOptions{UserID: "u1"})
		if err != nil {
			t.Fatalf("ListThreads: %v", err)
		}
		if len(threads) != 1 || threads[0].ID != a.ID {
			t.Errorf("threads = %+v", threads)
		}

		threads, err = st.ListThreads(ctx, ListOptions{UserID: "u1", IncludeArchived: true})
		if err != nil {
			t.Fatalf("ListThreads: %v", err)
		}
		if len(threads) != 2 {
			t.Errorf("with archived: %d threads, want 2", len(threads))
		}
	})

	t.Run("messages append in order and bump counters", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		thread := newThread(t, st, "u1")
		msgs := []*models.Message{
			{Role: models.RoleUser, Type: models.MessageText, Content: "hi"},
			{Role: models.RoleAgent, Type: models.MessageText, Content: "hello", ToolCalls: []models.ToolCall{
				{ID: "c1", Name: "calculate_roi", Input: []byte(`{"x":1}`)},
			}},
			{Role: models.RoleUser, Type: models.MessageText, Content: "thanks"},
		}
		for i, msg := range msgs {
			msg.CreatedAt = time.Now().Add(time.Duration(i) * time.Millisecond)
			if err := st.AppendMessage(ctx, thread.ID, msg); err != nil {
				t.Fatalf("AppendMessage %d: %v", i, err)
			}
		}

		history, err := st.GetHistory(ctx, thread.ID, 0)
		if err != nil {
			t.Fatalf("GetHistory: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("history = %d messages", len(history))
		}
		if history[0].Content != "hi" || history[2].Content != "thanks" {
			t.Errorf("order wrong: %q .. %q", history[0].Content, history[2].Content)
		}
		if len(history[1].ToolCalls) != 1 || history[1].ToolCalls[0].Name != "calculate_roi" {
			t.Errorf("tool calls not persisted: %+v", history[1].ToolCalls)
		}

		limited, err := st.GetHistory(ctx, thread.ID, 2)
		if err != nil {
			t.Fatalf("GetHistory limited: %v", err)
		}
		if len(limited) != 2 || limited[0].Content != "hello" {
			t.Errorf("limit must keep the most recent messages: %+v", limited)
		}

		got, _ := st.GetThread(ctx, thread.ID)
		if got.MessageCount != 3 {
			t.Errorf("message count = %d", got.MessageCount)
		}
		if got.UnreadCount != 1 {
			t.Errorf("unread count = %d, want 1 (agent messages only)", got.UnreadCount)
		}
		if got.LastActivityAt.IsZero() {
			t.Error("last activity not set")
		}
	})

	t.Run("append to missing thread", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		err := st.AppendMessage(ctx, "missing", &models.Message{Role: models.RoleUser, Type: models.MessageText})
		if !errors.Is(err, ErrThreadNotFound) {
			t.Errorf("error = %v, want ErrThreadNotFound", err)
		}
	})

	t.Run("approval lifecycle", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		thread := newThread(t, st, "u1")
		pending := &models.Approval{
			ThreadID:   thread.ID,
			MessageID:  "m1",
			ActionType: "export-data",
			Params:     []byte(`{"dataset":"leads"}`),
			Preview:    "Export leads data",
			Status:     models.ApprovalPending,
			ExpiresAt:  time.Now().Add(time.Hour),
		}
		if err := st.CreateApproval(ctx, pending); err != nil {
			t.Fatalf("CreateApproval: %v", err)
		}
		queued := &models.Approval{
			ThreadID:   thread.ID,
			MessageID:  "m1",
			ActionType: "send-message",
			Status:     models.ApprovalQueued,
			CreatedAt:  time.Now().Add(time.Millisecond),
		}
		if err := st.CreateApproval(ctx, queued); err != nil {
			t.Fatalf("CreateApproval queued: %v", err)
		}

		got, err := st.PendingApproval(ctx, thread.ID)
		if err != nil {
			t.Fatalf("PendingApproval: %v", err)
		}
		if got.ID != pending.ID || string(got.Params) != `{"dataset":"leads"}` {
			t.Errorf("pending = %+v", got)
		}

		qs, err := st.QueuedApprovals(ctx, thread.ID)
		if err != nil {
			t.Fatalf("QueuedApprovals: %v", err)
		}
		if len(qs) != 1 || qs[0].ID != queued.ID {
			t.Errorf("queued = %+v", qs)
		}

		resolved, err := st.TransitionApproval(ctx, pending.ID, models.ApprovalPending, models.ApprovalApproved, "alice", "ok")
		if err != nil {
			t.Fatalf("TransitionApproval: %v", err)
		}
		if resolved.Status != models.ApprovalApproved || resolved.ResolverID != "alice" || resolved.ResolvedAt.IsZero() {
			t.Errorf("resolved = %+v", resolved)
		}

		// CAS refuses a second transition.
		if _, err := st.TransitionApproval(ctx, pending.ID, models.ApprovalPending, models.ApprovalRejected, "bob", ""); !errors.Is(err, ErrApprovalConflict) {
			t.Errorf("error = %v, want ErrApprovalConflict", err)
		}

		// Promotion is a non-terminal transition.
		promoted, err := st.TransitionApproval(ctx, queued.ID, models.ApprovalQueued, models.ApprovalPending, "", "")
		if err != nil {
			t.Fatalf("promote: %v", err)
		}
		if promoted.Status != models.ApprovalPending || !promoted.ResolvedAt.IsZero() {
			t.Errorf("promoted = %+v", promoted)
		}
	})

	t.Run("stale pending", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		thread := newThread(t, st, "u1")
		old := &models.Approval{
			ThreadID: thread.ID, MessageID: "m1", ActionType: "export-data",
			Status: models.ApprovalPending, ExpiresAt: time.Now().Add(-time.Hour),
		}
		fresh := &models.Approval{
			ThreadID: thread.ID, MessageID: "m1", ActionType: "send-message",
			Status: models.ApprovalQueued, ExpiresAt: time.Now().Add(-time.Hour),
		}
		if err := st.CreateApproval(ctx, old); err != nil {
			t.Fatal(err)
		}
		if err := st.CreateApproval(ctx, fresh); err != nil {
			t.Fatal(err)
		}

		stale, err := st.StalePending(ctx, time.Now())
		if err != nil {
			t.Fatalf("StalePending: %v", err)
		}
		if len(stale) != 1 || stale[0].ID != old.ID {
			t.Errorf("stale = %+v (queued approvals never expire directly)", stale)
		}
	})

	t.Run("missing approval", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		if _, err := st.GetApproval(ctx, "missing"); !errors.Is(err, ErrApprovalNotFound) {
			t.Errorf("GetApproval error = %v", err)
		}
		if _, err := st.TransitionApproval(ctx, "missing", models.ApprovalPending, models.ApprovalApproved, "a", ""); !errors.Is(err, ErrApprovalNotFound) {
			t.Errorf("TransitionApproval error = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		st, err := NewSQLiteStore(":memory:")
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return st
	})
}
