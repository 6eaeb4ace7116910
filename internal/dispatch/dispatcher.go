// Package dispatch accepts user messages and runs agent turns on a
// bounded worker pool. Admission control happens synchronously at post
// time; generation, tool execution, approval gating, and notification
// all happen on the worker.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowentxo/agentinbox/internal/agent"
	"github.com/flowentxo/agentinbox/internal/agents"
	"github.com/flowentxo/agentinbox/internal/approvals"
	"github.com/flowentxo/agentinbox/internal/notify"
	"github.com/flowentxo/agentinbox/internal/routing"
	"github.com/flowentxo/agentinbox/internal/store"
	"github.com/flowentxo/agentinbox/internal/usage"
	"github.com/flowentxo/agentinbox/pkg/models"

	actionspkg "github.com/flowentxo/agentinbox/internal/actions"
)

var (
	// ErrThreadSuspended means the thread is awaiting an approval
	// decision and refuses new user messages.
	ErrThreadSuspended = errors.New("thread is suspended pending approval")

	// ErrThreadArchived means the thread is soft-deleted.
	ErrThreadArchived = errors.New("thread is archived")

	// ErrTurnInFlight means a turn is already running for the thread.
	ErrTurnInFlight = errors.New("a turn is already in flight for this thread")

	// ErrQueueFull means the dispatch queue rejected the turn.
	ErrQueueFull = errors.New("dispatch queue is full")
)

// historyLimit caps how much thread history a turn loads.
const historyLimit = 50

// Config sizes the dispatcher.
type Config struct {
	Workers     int
	QueueSize   int
	TurnTimeout time.Duration
	Loop        *agent.LoopConfig
}

// Dispatcher owns the post-message entry point and the turn workers.
type Dispatcher struct {
	store     store.Store
	agents    *agents.Registry
	router    *routing.Router
	approvals *approvals.Machine
	notifier  notify.Notifier
	usage     usage.Sink
	providers map[string]agent.LLMProvider
	loopCfg   *agent.LoopConfig
	timeout   time.Duration
	tracer    trace.Tracer
	logger    *slog.Logger

	queue chan *turnJob
	wg    sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool
	closed   bool
}

type turnJob struct {
	threadID string
	text     string
}

// New creates the dispatcher and starts its workers. Notifier and usage
// sink are wrapped in panic boundaries so misbehaving observers cannot
// fail a turn.
func New(
	st store.Store,
	registry *agents.Registry,
	router *routing.Router,
	machine *approvals.Machine,
	notifier notify.Notifier,
	sink usage.Sink,
	providers map[string]agent.LLMProvider,
	cfg Config,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 2 * time.Minute
	}

	d := &Dispatcher{
		store:     st,
		agents:    registry,
		router:    router,
		approvals: machine,
		notifier:  notify.NewGuard(notifier, logger),
		providers: providers,
		loopCfg:   cfg.Loop,
		timeout:   cfg.TurnTimeout,
		tracer:    otel.Tracer("agentinbox/dispatch"),
		logger:    logger,
		queue:     make(chan *turnJob, cfg.QueueSize),
		inflight:  map[string]bool{},
	}
	if sink != nil {
		d.usage = usage.NewGuard(sink, logger)
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// PostUserMessage persists a user message and enqueues the agent turn.
// It returns as soon as the message is durable; generation streams via
// the notifier. Admission is refused while the thread is suspended,
// archived, already mid-turn, or when the queue is full.
func (d *Dispatcher) PostUserMessage(ctx context.Context, threadID, text string) (*models.Message, error) {
	thread, err := d.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.State.Suspended() {
		return nil, ErrThreadSuspended
	}
	if thread.State.Archived() {
		return nil, ErrThreadArchived
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrQueueFull
	}
	if d.inflight[threadID] {
		d.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	d.inflight[threadID] = true
	d.mu.Unlock()

	msg := &models.Message{
		ThreadID: threadID,
		Role:     models.RoleUser,
		Type:     models.MessageText,
		Content:  text,
	}
	if err := d.store.AppendMessage(ctx, threadID, msg); err != nil {
		d.release(threadID)
		return nil, err
	}

	select {
	case d.queue <- &turnJob{threadID: threadID, text: text}:
	default:
		d.release(threadID)
		return nil, ErrQueueFull
	}
	return msg, nil
}

// Close stops accepting work and waits for in-flight turns to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.queue)
	d.wg.Wait()
}

func (d *Dispatcher) release(threadID string) {
	d.mu.Lock()
	delete(d.inflight, threadID)
	d.mu.Unlock()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.safeRunTurn(job)
		d.release(job.threadID)
	}
}

// safeRunTurn is the per-turn fault boundary: a panic anywhere in the
// turn pipeline is logged and isolated to that turn.
func (d *Dispatcher) safeRunTurn(job *turnJob) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("turn panicked",
				"thread_id", job.threadID,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	d.runTurn(ctx, job)
}

func (d *Dispatcher) runTurn(ctx context.Context, job *turnJob) {
	ctx, span := d.tracer.Start(ctx, "dispatch.turn",
		trace.WithAttributes(attribute.String("thread.id", job.threadID)))
	defer span.End()

	started := time.Now()

	thread, err := d.store.GetThread(ctx, job.threadID)
	if err != nil {
		d.failTurn(span, job.threadID, "load thread", err)
		return
	}

	history, err := d.store.GetHistory(ctx, thread.ID, historyLimit)
	if err != nil {
		d.failTurn(span, thread.ID, "load history", err)
		return
	}
	// The just-posted user message is already in history; the loop takes
	// it separately as the turn text.
	if n := len(history); n > 0 && history[n-1].Role == models.RoleUser {
		history = history[:n-1]
	}

	decision, forwardText := d.router.Route(ctx, job.text, thread.AgentID, recentTurns(history))
	span.SetAttributes(attribute.String("agent.id", decision.AgentID))

	if thread.AgentID != decision.AgentID || thread.AgentName != decision.AgentName {
		thread.AgentID = decision.AgentID
		thread.AgentName = decision.AgentName
		if err := d.store.UpdateThread(ctx, thread); err != nil {
			d.failTurn(span, thread.ID, "reassign thread", err)
			return
		}
		d.notifier.RoutingChanged(thread.ID, decision)
		d.notifier.ThreadUpdated(thread)
	}

	caps, ok := d.agents.Get(decision.AgentID)
	if !ok {
		d.failTurn(span, thread.ID, "resolve agent", fmt.Errorf("agent %s not registered", decision.AgentID))
		return
	}
	provider := d.providers[caps.Agent.Provider]
	if provider == nil {
		d.failTurn(span, thread.ID, "resolve provider", fmt.Errorf("%w: %s", agent.ErrNoProvider, caps.Agent.Provider))
		return
	}

	d.notifier.Typing(thread.ID, caps.Agent.ID)

	turnReq := &agent.TurnRequest{
		Model:   caps.Agent.Model,
		System:  caps.Agent.SystemPrompt,
		History: toCompletionMessages(history),
		Text:    forwardText,
	}
	if caps.Agent.Agentic {
		turnReq.Tools = caps.Tools
	}

	loop := agent.NewLoop(provider, d.loopCfg)
	events, err := loop.Run(ctx, turnReq)
	if err != nil {
		d.failTurn(span, thread.ID, "start loop", err)
		return
	}

	messageID := uuid.NewString()
	var partial strings.Builder
	var result *agent.TurnResult
	var turnErr error

	for event := range events {
		switch {
		case event.Text != "":
			partial.WriteString(event.Text)
			d.notifier.TextDelta(thread.ID, messageID, event.Text)
		case event.ToolStarted != nil:
			d.notifier.ToolCall(thread.ID, event.ToolStarted)
		case event.ToolResult != nil:
			d.notifier.ToolCall(thread.ID, event.ToolResult)
		case event.Err != nil:
			turnErr = event.Err
		case event.Done != nil:
			result = event.Done
		}
	}

	if turnErr != nil {
		d.finalizeFailure(ctx, span, thread, messageID, partial.String(), turnErr)
		d.record(caps, thread.ID, nil, time.Since(started), true)
		return
	}
	if result == nil {
		turnErr = errors.New("turn ended without completion")
		d.finalizeFailure(ctx, span, thread, messageID, partial.String(), turnErr)
		d.record(caps, thread.ID, nil, time.Since(started), true)
		return
	}

	if err := d.finalizeSuccess(ctx, thread, messageID, result); err != nil {
		d.failTurn(span, thread.ID, "finalize", err)
		d.record(caps, thread.ID, result, time.Since(started), true)
		return
	}
	span.SetStatus(codes.Ok, "")
	d.record(caps, thread.ID, result, time.Since(started), false)
}

// finalizeSuccess persists the agent message (tags stripped for display),
// feeds the raw transcript through the approval machine, and pushes the
// final notifications.
func (d *Dispatcher) finalizeSuccess(ctx context.Context, thread *models.Thread, messageID string, result *agent.TurnResult) error {
	msg := &models.Message{
		ID:        messageID,
		ThreadID:  thread.ID,
		Role:      models.RoleAgent,
		Type:      models.MessageText,
		Content:   actionspkg.Strip(result.Transcript),
		ToolCalls: result.ToolCalls,
	}
	if err := d.store.AppendMessage(ctx, thread.ID, msg); err != nil {
		return err
	}
	d.notifier.MessageComplete(thread.ID, msg)

	// Extraction works on the raw transcript; the stored message keeps
	// only the display text.
	raw := *msg
	raw.Content = result.Transcript
	if _, err := d.approvals.OnAgentMessage(ctx, thread, &raw); err != nil {
		return err
	}

	updated, err := d.store.GetThread(ctx, thread.ID)
	if err != nil {
		return err
	}
	d.notifier.ThreadUpdated(updated)
	return nil
}

// finalizeFailure persists whatever text streamed before the failure.
// The failure itself stays in logs and telemetry; no error message is
// synthesized into the thread for a transient provider problem.
func (d *Dispatcher) finalizeFailure(ctx context.Context, span trace.Span, thread *models.Thread, messageID, partial string, turnErr error) {
	span.RecordError(turnErr)
	span.SetStatus(codes.Error, turnErr.Error())
	d.logger.Error("turn failed", "thread_id", thread.ID, "error", turnErr)

	if partial == "" {
		return
	}
	msg := &models.Message{
		ID:       messageID,
		ThreadID: thread.ID,
		Role:     models.RoleAgent,
		Type:     models.MessageText,
		Content:  actionspkg.Strip(partial),
	}
	if err := d.store.AppendMessage(ctx, thread.ID, msg); err != nil {
		d.logger.Error("failed to persist partial message", "thread_id", thread.ID, "error", err)
		return
	}
	d.notifier.MessageComplete(thread.ID, msg)
}

func (d *Dispatcher) failTurn(span trace.Span, threadID, stage string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	d.logger.Error("turn aborted", "thread_id", threadID, "stage", stage, "error", err)
}

func (d *Dispatcher) record(caps *agents.Capabilities, threadID string, result *agent.TurnResult, elapsed time.Duration, failed bool) {
	if d.usage == nil {
		return
	}
	rec := &usage.Record{
		ThreadID: threadID,
		AgentID:  caps.Agent.ID,
		Provider: caps.Agent.Provider,
		Model:    caps.Agent.Model,
		Duration: elapsed,
		Failed:   failed,
	}
	if result != nil {
		rec.InputTokens = result.InputTokens
		rec.OutputTokens = result.OutputTokens
		rec.ToolCalls = len(result.ToolCalls)
	}
	d.usage.Record(rec)
}

// toCompletionMessages converts persisted history to the generation
// format. System events are invisible to the model.
func toCompletionMessages(history []*models.Message) []agent.CompletionMessage {
	result := make([]agent.CompletionMessage, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			result = append(result, agent.CompletionMessage{Role: "user", Content: msg.Content})
		case models.RoleAgent:
			if msg.Type != models.MessageText || msg.Content == "" {
				continue
			}
			result = append(result, agent.CompletionMessage{Role: "assistant", Content: msg.Content})
		}
	}
	return result
}

// recentTurns renders the last few turns for the intent classifier.
func recentTurns(history []*models.Message) []string {
	start := len(history) - routing.ContextTurns
	if start < 0 {
		start = 0
	}
	var result []string
	for _, msg := range history[start:] {
		if msg.Type != models.MessageText {
			continue
		}
		result = append(result, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return result
}
