package models

// RoutingDecision is the outcome of intent routing for one user message.
type RoutingDecision struct {
	AgentID         string  `json:"agent_id"`
	AgentName       string  `json:"agent_name"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
	PreviousAgentID string  `json:"previous_agent_id,omitempty"`
	// Explicit is true when the user addressed the agent by mention,
	// bypassing classification.
	Explicit bool `json:"explicit"`
}

// Changed reports whether the decision hands the thread to a new agent.
func (d *RoutingDecision) Changed() bool {
	return d.PreviousAgentID != "" && d.PreviousAgentID != d.AgentID
}
