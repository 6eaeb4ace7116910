package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/flowentxo/agentinbox/pkg/models"
)

const (
	// eventBufferSize is the channel buffer for emitted events.
	eventBufferSize = 64

	// MaxTranscriptSize bounds accumulated response text per turn.
	MaxTranscriptSize = 1 << 20
)

// LoopConfig configures the orchestration loop.
type LoopConfig struct {
	// MaxToolCalls limits total tool invocations per turn. Exceeding the
	// bound forces completion with whatever text has been produced.
	// Default: 10.
	MaxToolCalls int

	// MaxIterations limits stream/execute cycles per turn. Default: 10.
	MaxIterations int

	// MaxTokens is the per-request generation cap. Default: 4096.
	MaxTokens int

	// ToolTimeout applies to each tool execution. Default: 30s.
	ToolTimeout time.Duration

	// Logger receives loop diagnostics.
	Logger *slog.Logger
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxToolCalls:  10,
		MaxIterations: 10,
		MaxTokens:     4096,
		ToolTimeout:   30 * time.Second,
		Logger:        slog.Default(),
	}
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	defaults := DefaultLoopConfig()
	if config == nil {
		return defaults
	}
	cfg := *config
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = defaults.MaxToolCalls
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = defaults.ToolTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	return &cfg
}

// TurnRequest describes one user-message-to-agent-response cycle.
type TurnRequest struct {
	Model   string
	System  string
	History []CompletionMessage
	Text    string

	// Tools is the agent's registry. Nil or empty yields the plain
	// text-only streaming path with no tool plane.
	Tools *ToolRegistry
}

// TurnResult is carried by the final Done event of a turn.
type TurnResult struct {
	// Transcript is the concatenation of all text deltas in emission order.
	Transcript string

	// ToolCalls lists the tools invoked during the turn, in order.
	ToolCalls []models.ToolCall

	// Truncated is true when the tool-call bound forced completion.
	Truncated bool

	InputTokens  int
	OutputTokens int
}

// Event is one element of a turn's streaming sequence. Exactly one field
// is set. For a single turn, events are strictly ordered as produced;
// concatenating Text fields reconstructs the transcript exactly.
type Event struct {
	// Text is an incremental text delta.
	Text string

	// ToolStarted is emitted before the tool executor runs.
	ToolStarted *models.ToolCallEvent

	// ToolResult is emitted after the tool resolves.
	ToolResult *models.ToolCallEvent

	// Err terminates the sequence on provider-level failure. Text emitted
	// before the failure remains valid transcript content.
	Err error

	// Done terminates the sequence successfully.
	Done *TurnResult
}

// Loop drives a generation session for one turn: it streams text deltas,
// invokes registered tools on the session's request, and terminates with
// the final transcript plus the list of invoked tools.
type Loop struct {
	provider LLMProvider
	config   *LoopConfig
}

// NewLoop creates an orchestration loop on the given provider.
// If config is nil, DefaultLoopConfig is used.
func NewLoop(provider LLMProvider, config *LoopConfig) *Loop {
	return &Loop{
		provider: provider,
		config:   sanitizeLoopConfig(config),
	}
}

// loopState tracks one in-flight turn.
type loopState struct {
	messages   []CompletionMessage
	transcript strings.Builder
	invoked    []models.ToolCall
	toolCalls  int
	inTokens   int
	outTokens  int
}

// Run executes the turn and streams events through the returned channel.
// The channel is closed after the terminal Err or Done event.
func (l *Loop) Run(ctx context.Context, req *TurnRequest) (<-chan *Event, error) {
	if l.provider == nil {
		return nil, &LoopError{Phase: PhaseInit, Cause: ErrNoProvider}
	}

	events := make(chan *Event, eventBufferSize)

	go func() {
		defer close(events)

		state := &loopState{
			messages: make([]CompletionMessage, 0, len(req.History)+1),
		}
		state.messages = append(state.messages, req.History...)
		state.messages = append(state.messages, CompletionMessage{Role: "user", Content: req.Text})

		for iteration := 0; iteration < l.config.MaxIterations; iteration++ {
			select {
			case <-ctx.Done():
				events <- &Event{Err: &LoopError{Phase: PhaseStream, Iteration: iteration, Cause: ctx.Err()}}
				return
			default:
			}

			toolCalls, err := l.streamPhase(ctx, req, state, events)
			if err != nil {
				events <- &Event{Err: &LoopError{Phase: PhaseStream, Iteration: iteration, Cause: err}}
				return
			}

			if len(toolCalls) == 0 {
				events <- &Event{Done: l.result(state, false)}
				return
			}

			if state.toolCalls+len(toolCalls) > l.config.MaxToolCalls {
				l.config.Logger.Warn("tool call bound reached, forcing completion",
					"limit", l.config.MaxToolCalls, "requested", len(toolCalls))
				events <- &Event{Done: l.result(state, true)}
				return
			}
			state.toolCalls += len(toolCalls)

			results := l.executeToolsPhase(ctx, req, state, toolCalls, events)
			if ctx.Err() != nil {
				events <- &Event{Err: &LoopError{Phase: PhaseExecuteTools, Iteration: iteration, Cause: ctx.Err()}}
				return
			}

			state.messages = append(state.messages, CompletionMessage{
				Role:      "assistant",
				Content:   "",
				ToolCalls: toolCalls,
			})
			state.messages = append(state.messages, CompletionMessage{
				Role:        "tool",
				ToolResults: results,
			})
		}

		// Iteration bound reached: complete with what we have rather than
		// failing the turn.
		l.config.Logger.Warn("iteration bound reached, forcing completion",
			"limit", l.config.MaxIterations)
		events <- &Event{Done: l.result(state, true)}
	}()

	return events, nil
}

func (l *Loop) result(state *loopState, truncated bool) *TurnResult {
	return &TurnResult{
		Transcript:   state.transcript.String(),
		ToolCalls:    state.invoked,
		Truncated:    truncated,
		InputTokens:  state.inTokens,
		OutputTokens: state.outTokens,
	}
}

// streamPhase drives one provider stream, forwarding text deltas and
// collecting any tool calls the session requests.
func (l *Loop) streamPhase(ctx context.Context, req *TurnRequest, state *loopState, events chan<- *Event) ([]models.ToolCall, error) {
	completion := &CompletionRequest{
		Model:     req.Model,
		System:    req.System,
		Messages:  state.messages,
		MaxTokens: l.config.MaxTokens,
	}
	if req.Tools != nil && req.Tools.Len() > 0 && l.provider.SupportsTools() {
		completion.Tools = req.Tools.AsLLMTools()
	}

	chunks, err := l.provider.Complete(ctx, completion)
	if err != nil {
		return nil, err
	}

	var toolCalls []models.ToolCall
	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		if chunk.Text != "" {
			if state.transcript.Len()+len(chunk.Text) > MaxTranscriptSize {
				return nil, &LoopError{Phase: PhaseStream, Cause: errTranscriptTooLarge}
			}
			state.transcript.WriteString(chunk.Text)
			events <- &Event{Text: chunk.Text}
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		state.inTokens += chunk.InputTokens
		state.outTokens += chunk.OutputTokens
	}

	return toolCalls, nil
}

// executeToolsPhase runs the requested tools in order, emitting the
// started event before each execution and the result event after. A
// failing tool is reported to the session as tool output, never as a
// fatal turn error.
func (l *Loop) executeToolsPhase(ctx context.Context, req *TurnRequest, state *loopState, toolCalls []models.ToolCall, events chan<- *Event) []models.ToolResult {
	results := make([]models.ToolResult, 0, len(toolCalls))

	for _, tc := range toolCalls {
		events <- &Event{ToolStarted: &models.ToolCallEvent{
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Status:     models.ToolEventRunning,
			Input:      tc.Input,
			StartedAt:  time.Now(),
		}}

		result := l.executeTool(ctx, req.Tools, tc)
		results = append(results, result)
		state.invoked = append(state.invoked, tc)

		event := &models.ToolCallEvent{
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Status:     models.ToolEventCompleted,
			FinishedAt: time.Now(),
		}
		if result.IsError {
			event.Status = models.ToolEventFailed
			event.Error = result.Content
		} else {
			event.Result = result.Content
		}
		events <- &Event{ToolResult: event}
	}

	return results
}

func (l *Loop) executeTool(ctx context.Context, registry *ToolRegistry, tc models.ToolCall) models.ToolResult {
	if registry == nil {
		return models.ToolResult{
			ToolCallID: tc.ID,
			Content:    "tool not found: " + tc.Name,
			IsError:    true,
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, l.config.ToolTimeout)
	defer cancel()

	res, err := registry.Execute(execCtx, tc.Name, tc.Input)
	if err != nil {
		l.config.Logger.Warn("tool execution failed", "tool", tc.Name, "error", err)
		return models.ToolResult{
			ToolCallID: tc.ID,
			Content:    err.Error(),
			IsError:    true,
		}
	}
	return models.ToolResult{
		ToolCallID: tc.ID,
		Content:    res.Content,
		IsError:    res.IsError,
	}
}
