// Package routing selects the responsible agent for each inbound user
// message. An explicit @mention always wins; otherwise classification
// runs only for threads bound to the generalist agent, so a specialist
// conversation is never silently handed off.
package routing

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/flowentxo/agentinbox/internal/agents"
	"github.com/flowentxo/agentinbox/pkg/models"
)

// ContextTurns is how many recent turns the classifier consumes.
const ContextTurns = 5

// Classifier picks the best agent for a message from the candidates.
type Classifier interface {
	Classify(ctx context.Context, text string, recent []string, candidates []models.Agent) (agentID string, confidence float64, reasoning string, err error)
}

// Router routes user messages to agents.
type Router struct {
	agents     *agents.Registry
	classifier Classifier
	logger     *slog.Logger
}

// NewRouter creates a router over the agent registry. classifier may be
// nil, in which case auto-routing always falls back to the current agent.
func NewRouter(registry *agents.Registry, classifier Classifier, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{agents: registry, classifier: classifier, logger: logger}
}

var mentionPattern = regexp.MustCompile(`@([A-Za-z][A-Za-z0-9_-]*)`)

// Route decides which agent answers userText and returns the decision
// plus the text to forward to generation (the mention token, if any, is
// stripped). Routing never fails a turn: classifier errors fall back to
// the current or default agent with confidence 0.
func (r *Router) Route(ctx context.Context, userText, currentAgentID string, recent []string) (*models.RoutingDecision, string) {
	// 1. Explicit mention always wins, bypassing classification.
	if caps, stripped, ok := r.findMention(userText); ok {
		return &models.RoutingDecision{
			AgentID:         caps.Agent.ID,
			AgentName:       caps.Agent.Name,
			Confidence:      1.0,
			Reasoning:       "explicit assignment",
			PreviousAgentID: currentAgentID,
			Explicit:        true,
		}, stripped
	}

	// 2. A thread already bound to a specialist is never re-routed by
	// inference; only a mention can change it.
	if currentAgentID != "" && !r.agents.IsDefault(currentAgentID) {
		current, ok := r.agents.Get(currentAgentID)
		name := currentAgentID
		if ok {
			name = current.Agent.Name
		}
		return &models.RoutingDecision{
			AgentID:    currentAgentID,
			AgentName:  name,
			Confidence: 1.0,
			Reasoning:  "thread bound to specialist agent",
		}, userText
	}

	// 3. Classify from the generalist.
	decision := r.classify(ctx, userText, currentAgentID, recent)
	return decision, userText
}

func (r *Router) classify(ctx context.Context, userText, currentAgentID string, recent []string) *models.RoutingDecision {
	fallback := r.fallbackDecision(currentAgentID)
	if r.classifier == nil {
		return fallback
	}

	if len(recent) > ContextTurns {
		recent = recent[len(recent)-ContextTurns:]
	}

	agentID, confidence, reasoning, err := r.classifier.Classify(ctx, userText, recent, r.agents.List())
	if err != nil {
		r.logger.Warn("intent classification failed, falling back", "error", err)
		return fallback
	}

	caps, ok := r.agents.Get(agentID)
	if !ok {
		r.logger.Warn("classifier selected unknown agent", "agent_id", agentID)
		return fallback
	}

	return &models.RoutingDecision{
		AgentID:         caps.Agent.ID,
		AgentName:       caps.Agent.Name,
		Confidence:      clamp01(confidence),
		Reasoning:       reasoning,
		PreviousAgentID: currentAgentID,
	}
}

// fallbackDecision keeps the turn alive when classification is
// unavailable: stay on the current agent, or the default when unset.
func (r *Router) fallbackDecision(currentAgentID string) *models.RoutingDecision {
	id := currentAgentID
	name := currentAgentID
	if caps, ok := r.agents.Get(currentAgentID); ok {
		name = caps.Agent.Name
	} else if def, ok := r.agents.Default(); ok {
		id = def.Agent.ID
		name = def.Agent.Name
	}
	return &models.RoutingDecision{
		AgentID:    id,
		AgentName:  name,
		Confidence: 0,
		Reasoning:  "routing unavailable",
	}
}

// findMention returns the first @mention that resolves to a registered
// agent, with the mention token removed from the forwarded text.
func (r *Router) findMention(text string) (*agents.Capabilities, string, bool) {
	for _, m := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		caps, ok := r.agents.ByName(name)
		if !ok {
			continue
		}
		return caps, stripMention(text, m[0], m[1]), true
	}
	return nil, "", false
}

// stripMention removes the token at [start,end) and collapses only the
// space it leaves behind. The rest of the message, line breaks included,
// is forwarded untouched.
func stripMention(text string, start, end int) string {
	before, after := text[:start], text[end:]
	if strings.HasSuffix(before, " ") && strings.HasPrefix(after, " ") {
		after = after[1:]
	}
	return strings.TrimSpace(before + after)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
