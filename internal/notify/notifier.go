// Package notify fans orchestration events out to connected clients.
//
// Delivery is best effort: the dispatcher calls notifiers fire-and-forget
// and a failing or panicking notifier never affects a turn.
package notify

import (
	"log/slog"
	"runtime/debug"

	"github.com/flowentxo/agentinbox/pkg/models"
)

// Notifier receives orchestration events for a thread.
type Notifier interface {
	Typing(threadID, agentID string)
	TextDelta(threadID, messageID, delta string)
	MessageComplete(threadID string, msg *models.Message)
	ToolCall(threadID string, event *models.ToolCallEvent)
	ThreadUpdated(thread *models.Thread)
	RoutingChanged(threadID string, decision *models.RoutingDecision)
	ApprovalRequested(approval *models.Approval)
	ApprovalResolved(approval *models.Approval)
}

// Nop is a Notifier that discards all events.
type Nop struct{}

func (Nop) Typing(string, string)                            {}
func (Nop) TextDelta(string, string, string)                 {}
func (Nop) MessageComplete(string, *models.Message)          {}
func (Nop) ToolCall(string, *models.ToolCallEvent)           {}
func (Nop) ThreadUpdated(*models.Thread)                     {}
func (Nop) RoutingChanged(string, *models.RoutingDecision)   {}
func (Nop) ApprovalRequested(*models.Approval)               {}
func (Nop) ApprovalResolved(*models.Approval)                {}

// Guard wraps a Notifier so that panics in the underlying implementation
// are recovered and logged instead of crashing the calling turn.
type Guard struct {
	inner  Notifier
	logger *slog.Logger
}

// NewGuard wraps inner in a panic boundary.
func NewGuard(inner Notifier, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{inner: inner, logger: logger}
}

func (g *Guard) protect(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("notifier panicked",
				"event", event,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (g *Guard) Typing(threadID, agentID string) {
	g.protect("typing", func() { g.inner.Typing(threadID, agentID) })
}

func (g *Guard) TextDelta(threadID, messageID, delta string) {
	g.protect("text_delta", func() { g.inner.TextDelta(threadID, messageID, delta) })
}

func (g *Guard) MessageComplete(threadID string, msg *models.Message) {
	g.protect("message_complete", func() { g.inner.MessageComplete(threadID, msg) })
}

func (g *Guard) ToolCall(threadID string, event *models.ToolCallEvent) {
	g.protect("tool_call", func() { g.inner.ToolCall(threadID, event) })
}

func (g *Guard) ThreadUpdated(thread *models.Thread) {
	g.protect("thread_updated", func() { g.inner.ThreadUpdated(thread) })
}

func (g *Guard) RoutingChanged(threadID string, decision *models.RoutingDecision) {
	g.protect("routing_changed", func() { g.inner.RoutingChanged(threadID, decision) })
}

func (g *Guard) ApprovalRequested(approval *models.Approval) {
	g.protect("approval_requested", func() { g.inner.ApprovalRequested(approval) })
}

func (g *Guard) ApprovalResolved(approval *models.Approval) {
	g.protect("approval_resolved", func() { g.inner.ApprovalResolved(approval) })
}
