package models

import (
	"encoding/json"
	"time"
)

// ApprovalStatus describes the lifecycle of an approval gate.
type ApprovalStatus string

const (
	// ApprovalQueued waits behind another pending approval on the same thread.
	ApprovalQueued ApprovalStatus = "queued"
	// ApprovalPending is the thread's active gate awaiting a human decision.
	ApprovalPending ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Terminal reports whether the status can no longer change.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// Approval is a durable gate on one side-effecting tool action extracted
// from an agent message. Status only moves queued→pending and
// pending→{approved, rejected}, never backwards.
type Approval struct {
	ID         string          `json:"id"`
	ThreadID   string          `json:"thread_id"`
	MessageID  string          `json:"message_id"`
	ActionType string          `json:"action_type"`
	Params     json.RawMessage `json:"params,omitempty"`
	Preview    string          `json:"preview,omitempty"`
	Status     ApprovalStatus  `json:"status"`
	ResolverID string          `json:"resolver_id,omitempty"`
	Comment    string          `json:"comment,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at,omitempty"`
	ResolvedAt time.Time       `json:"resolved_at,omitempty"`
}
