// Package agents holds the capability-keyed agent registry: one lookup
// table from agent id to its prompt, model, and tool registry, populated
// once at startup.
package agents

import (
	"strings"
	"sync"

	"github.com/flowentxo/agentinbox/internal/agent"
	"github.com/flowentxo/agentinbox/pkg/models"
)

// Capabilities bundles everything the orchestrator needs to run a turn
// for one agent.
type Capabilities struct {
	Agent models.Agent

	// Tools is the agent's registry. Nil for non-agentic agents.
	Tools *agent.ToolRegistry
}

// Registry maps agent ids to their capabilities.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*Capabilities
	order     []string
	defaultID string
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*Capabilities),
	}
}

// Register adds an agent and its tool registry. The first registered
// generalist becomes the default agent.
func (r *Registry) Register(a models.Agent, tools *agent.ToolRegistry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[a.ID]; !exists {
		r.order = append(r.order, a.ID)
	}
	r.byID[a.ID] = &Capabilities{Agent: a, Tools: tools}
	if a.Generalist && r.defaultID == "" {
		r.defaultID = a.ID
	}
}

// Get returns the capabilities for an agent id.
func (r *Registry) Get(id string) (*Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.byID[id]
	return caps, ok
}

// ByName finds an agent by name or id, case-insensitively. Used for
// resolving @mentions.
func (r *Registry) ByName(name string) (*Capabilities, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		caps := r.byID[id]
		if strings.ToLower(caps.Agent.Name) == needle || strings.ToLower(caps.Agent.ID) == needle {
			return caps, true
		}
	}
	return nil, false
}

// Default returns the generalist agent, if one is registered.
func (r *Registry) Default() (*Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultID == "" {
		return nil, false
	}
	caps, ok := r.byID[r.defaultID]
	return caps, ok
}

// IsDefault reports whether the id names the generalist agent.
func (r *Registry) IsDefault(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id != "" && id == r.defaultID
}

// List returns all registered agents in registration order.
func (r *Registry) List() []models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]models.Agent, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.byID[id].Agent)
	}
	return result
}
