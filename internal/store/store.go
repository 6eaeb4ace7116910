// Package store persists threads, messages, and approvals. Two
// implementations exist: an in-memory store for tests and local runs,
// and a SQLite store for durable single-node deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/flowentxo/agentinbox/pkg/models"
)

var (
	ErrThreadNotFound   = errors.New("thread not found")
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrApprovalConflict means a status transition's precondition did
	// not hold; the approval was already resolved or promoted elsewhere.
	ErrApprovalConflict = errors.New("approval status conflict")
)

// ListOptions configures thread listing.
type ListOptions struct {
	UserID          string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Store is the interface for inbox persistence.
type Store interface {
	// Thread CRUD
	CreateThread(ctx context.Context, thread *models.Thread) error
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	UpdateThread(ctx context.Context, thread *models.Thread) error
	ListThreads(ctx context.Context, opts ListOptions) ([]*models.Thread, error)

	// Message history
	AppendMessage(ctx context.Context, threadID string, msg *models.Message) error
	GetHistory(ctx context.Context, threadID string, limit int) ([]*models.Message, error)

	// Approvals
	CreateApproval(ctx context.Context, approval *models.Approval) error
	GetApproval(ctx context.Context, id string) (*models.Approval, error)
	// PendingApproval returns the thread's single pending approval, or
	// ErrApprovalNotFound when the thread has none.
	PendingApproval(ctx context.Context, threadID string) (*models.Approval, error)
	// QueuedApprovals returns the thread's queued approvals oldest first.
	QueuedApprovals(ctx context.Context, threadID string) ([]*models.Approval, error)
	// TransitionApproval atomically moves an approval from one status to
	// another, recording resolver and comment on terminal transitions.
	// Returns ErrApprovalConflict when the approval is not in `from`.
	TransitionApproval(ctx context.Context, id string, from, to models.ApprovalStatus, resolverID, comment string) (*models.Approval, error)
	// StalePending returns pending approvals whose expiry has passed.
	StalePending(ctx context.Context, before time.Time) ([]*models.Approval, error)

	Close() error
}
