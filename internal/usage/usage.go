// Package usage records per-turn token and tool usage. Recording is
// fire-and-forget: a failing or panicking sink never affects the turn
// that produced the record.
package usage

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Record is one completed turn's usage.
type Record struct {
	ThreadID     string
	AgentID      string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	ToolCalls    int
	Duration     time.Duration
	Failed       bool
}

// Sink receives usage records.
type Sink interface {
	Record(rec *Record)
}

// Tracker aggregates usage in memory and exports Prometheus counters.
type Tracker struct {
	mu     sync.Mutex
	totals map[string]*AgentTotals

	turns        *prometheus.CounterVec
	inputTokens  *prometheus.CounterVec
	outputTokens *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	turnSeconds  *prometheus.HistogramVec
}

// AgentTotals is the running per-agent aggregate.
type AgentTotals struct {
	Turns        int
	FailedTurns  int
	InputTokens  int
	OutputTokens int
	ToolCalls    int
}

// NewTracker creates a tracker and registers its collectors with reg.
// A nil registerer skips registration (useful in tests).
func NewTracker(reg prometheus.Registerer) *Tracker {
	t := &Tracker{
		totals: map[string]*AgentTotals{},
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_turns_total",
			Help: "Completed agent turns by agent and outcome.",
		}, []string{"agent_id", "outcome"}),
		inputTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_input_tokens_total",
			Help: "Prompt tokens consumed by agent.",
		}, []string{"agent_id", "provider"}),
		outputTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_output_tokens_total",
			Help: "Completion tokens produced by agent.",
		}, []string{"agent_id", "provider"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_tool_calls_total",
			Help: "Tool executions by agent.",
		}, []string{"agent_id"}),
		turnSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inbox_turn_duration_seconds",
			Help:    "Wall-clock duration of agent turns.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"agent_id"}),
	}
	if reg != nil {
		reg.MustRegister(t.turns, t.inputTokens, t.outputTokens, t.toolCalls, t.turnSeconds)
	}
	return t
}

// Record implements Sink.
func (t *Tracker) Record(rec *Record) {
	outcome := "ok"
	if rec.Failed {
		outcome = "error"
	}
	t.turns.WithLabelValues(rec.AgentID, outcome).Inc()
	t.inputTokens.WithLabelValues(rec.AgentID, rec.Provider).Add(float64(rec.InputTokens))
	t.outputTokens.WithLabelValues(rec.AgentID, rec.Provider).Add(float64(rec.OutputTokens))
	t.toolCalls.WithLabelValues(rec.AgentID).Add(float64(rec.ToolCalls))
	t.turnSeconds.WithLabelValues(rec.AgentID).Observe(rec.Duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()
	totals := t.totals[rec.AgentID]
	if totals == nil {
		totals = &AgentTotals{}
		t.totals[rec.AgentID] = totals
	}
	totals.Turns++
	if rec.Failed {
		totals.FailedTurns++
	}
	totals.InputTokens += rec.InputTokens
	totals.OutputTokens += rec.OutputTokens
	totals.ToolCalls += rec.ToolCalls
}

// Totals returns a copy of the aggregate for one agent.
func (t *Tracker) Totals(agentID string) AgentTotals {
	t.mu.Lock()
	defer t.mu.Unlock()
	if totals, ok := t.totals[agentID]; ok {
		return *totals
	}
	return AgentTotals{}
}

// Guard wraps a Sink so panics in the sink are recovered and logged.
type Guard struct {
	inner  Sink
	logger *slog.Logger
}

// NewGuard wraps inner in a panic boundary.
func NewGuard(inner Sink, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{inner: inner, logger: logger}
}

// Record implements Sink.
func (g *Guard) Record(rec *Record) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("usage sink panicked",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	g.inner.Record(rec)
}
