package agent

import (
	"context"
	"encoding/json"

	"github.com/flowentxo/agentinbox/pkg/models"
)

// LLMProvider is the interface for streaming generation backends.
//
// Implementations must be safe for concurrent use; multiple goroutines may
// call Complete simultaneously for different turns.
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for one generation call.
type CompletionRequest struct {
	Model     string              `json:"model"`
	System    string              `json:"system,omitempty"`
	Messages  []CompletionMessage `json:"messages"`
	Tools     []Tool              `json:"tools,omitempty"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

// CompletionMessage is a single message in a generation conversation.
// Role values: "user", "assistant", "tool".
type CompletionMessage struct {
	Role        string               `json:"role"`
	Content     string               `json:"content,omitempty"`
	ToolCalls   []models.ToolCall    `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult  `json:"tool_results,omitempty"`
}

// CompletionChunk is a single chunk in a streaming provider response.
type CompletionChunk struct {
	// Text contains partial response text, streamed incrementally.
	Text string `json:"text,omitempty"`

	// ToolCall contains a complete tool execution request.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Done is true when the stream has completed successfully.
	Done bool `json:"done,omitempty"`

	// Error terminates the stream.
	Error error `json:"-"`

	// InputTokens and OutputTokens are populated on the final chunk only.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Tool defines the interface for executable agent tools.
type Tool interface {
	// Name returns the tool name used for function calling.
	Name() string

	// DisplayName returns the human-readable name shown to observers.
	DisplayName() string

	// Description tells the model what the tool does.
	Description() string

	// Schema returns the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool. Failures are communicated through the
	// result's IsError flag so the model can react in text.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult contains the output from a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}
