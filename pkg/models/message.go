package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// MessageType classifies a message for rendering and filtering.
type MessageType string

const (
	MessageText            MessageType = "text"
	MessageSystemEvent     MessageType = "system_event"
	MessageApprovalRequest MessageType = "approval_request"
)

// Message is a single turn in a thread. Content may fill incrementally
// while a response streams; once finalized the message is immutable.
type Message struct {
	ID        string      `json:"id"`
	ThreadID  string      `json:"thread_id"`
	Role      Role        `json:"role"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ToolCall represents a generation session's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}
