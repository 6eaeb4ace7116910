package models

import (
	"encoding/json"
	"time"
)

// ToolEventStatus describes the lifecycle stage of one tool invocation
// during a streaming turn.
type ToolEventStatus string

const (
	ToolEventRunning   ToolEventStatus = "running"
	ToolEventCompleted ToolEventStatus = "completed"
	ToolEventFailed    ToolEventStatus = "failed"
)

// ToolCallEvent is the streaming-only lifecycle record for one tool
// invocation. It exists for the duration of a single turn; the final
// snapshot is folded into the message's tool call metadata.
type ToolCallEvent struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Status     ToolEventStatus `json:"status"`
	Input      json.RawMessage `json:"input,omitempty"`
	Result     string          `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at,omitempty"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
}
