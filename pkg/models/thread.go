package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ThreadStatus describes the orchestration-visible state of a thread.
type ThreadStatus string

const (
	ThreadActive    ThreadStatus = "active"
	ThreadSuspended ThreadStatus = "suspended"
	ThreadArchived  ThreadStatus = "archived"
)

// ThreadState couples a thread's status with its pending approval gate.
//
// The zero value is active. A suspended state always carries the approval
// id that caused the suspension; the constructors make a suspended state
// without an approval (or an approval without suspension) unrepresentable.
type ThreadState struct {
	status     ThreadStatus
	approvalID string
}

// ActiveState returns the active thread state.
func ActiveState() ThreadState {
	return ThreadState{status: ThreadActive}
}

// ArchivedState returns the archived (soft-deleted) thread state.
func ArchivedState() ThreadState {
	return ThreadState{status: ThreadArchived}
}

// SuspendedState returns a suspended state gated on the given approval.
// An empty approval id cannot suspend a thread and yields the active state.
func SuspendedState(approvalID string) ThreadState {
	if approvalID == "" {
		return ActiveState()
	}
	return ThreadState{status: ThreadSuspended, approvalID: approvalID}
}

// StateFromStorage reconstructs a ThreadState from its persisted columns,
// rejecting combinations the constructors cannot produce.
func StateFromStorage(status ThreadStatus, approvalID string) (ThreadState, error) {
	switch status {
	case "", ThreadActive:
		if approvalID != "" {
			return ThreadState{}, fmt.Errorf("thread state: active with approval %s", approvalID)
		}
		return ActiveState(), nil
	case ThreadArchived:
		if approvalID != "" {
			return ThreadState{}, fmt.Errorf("thread state: archived with approval %s", approvalID)
		}
		return ArchivedState(), nil
	case ThreadSuspended:
		if approvalID == "" {
			return ThreadState{}, fmt.Errorf("thread state: suspended without approval")
		}
		return SuspendedState(approvalID), nil
	default:
		return ThreadState{}, fmt.Errorf("thread state: unknown status %q", status)
	}
}

// Status returns the thread status.
func (s ThreadState) Status() ThreadStatus {
	if s.status == "" {
		return ThreadActive
	}
	return s.status
}

// ApprovalID returns the pending approval gating the thread, if suspended.
func (s ThreadState) ApprovalID() string {
	return s.approvalID
}

// Suspended reports whether the thread is awaiting an approval decision.
func (s ThreadState) Suspended() bool {
	return s.status == ThreadSuspended
}

// Archived reports whether the thread has been soft-deleted.
func (s ThreadState) Archived() bool {
	return s.status == ThreadArchived
}

type threadStateJSON struct {
	Status     ThreadStatus `json:"status"`
	ApprovalID string       `json:"pending_approval_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s ThreadState) MarshalJSON() ([]byte, error) {
	return json.Marshal(threadStateJSON{Status: s.Status(), ApprovalID: s.approvalID})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ThreadState) UnmarshalJSON(data []byte) error {
	var raw threadStateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	state, err := StateFromStorage(raw.Status, raw.ApprovalID)
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// Thread is a conversation between a user and one assigned agent.
type Thread struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	AgentID        string      `json:"agent_id"`
	AgentName      string      `json:"agent_name,omitempty"`
	State          ThreadState `json:"state"`
	MessageCount   int         `json:"message_count"`
	UnreadCount    int         `json:"unread_count"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
