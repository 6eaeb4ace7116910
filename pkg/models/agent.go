package models

// Agent describes a configured AI agent.
type Agent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	// Generalist marks the default agent; only generalist threads are
	// eligible for automatic re-routing.
	Generalist bool `json:"generalist,omitempty"`
	// Agentic enables the tool-calling generation path. Non-agentic agents
	// stream plain text with no tool plane.
	Agentic bool     `json:"agentic,omitempty"`
	Tools   []string `json:"tools,omitempty"`
}
