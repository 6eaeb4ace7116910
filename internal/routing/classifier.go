package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowentxo/agentinbox/internal/agent"
	"github.com/flowentxo/agentinbox/pkg/models"
)

// LLMClassifier asks a completion model to pick the agent for a message.
// It requests a single JSON object and tolerates the model wrapping it in
// prose or code fences.
type LLMClassifier struct {
	provider agent.LLMProvider
	model    string
}

// NewLLMClassifier creates a classifier backed by the given provider and
// model.
func NewLLMClassifier(provider agent.LLMProvider, model string) *LLMClassifier {
	return &LLMClassifier{provider: provider, model: model}
}

const classifierSystemPrompt = `You are an intent router for a team inbox. Given a user message and the available agents, pick the single best agent to handle it.

Respond with only a JSON object:
{"agent_id": "<id>", "confidence": <0.0-1.0>, "reasoning": "<one short sentence>"}`

type classifierVerdict struct {
	AgentID    string  `json:"agent_id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, text string, recent []string, candidates []models.Agent) (string, float64, string, error) {
	var prompt strings.Builder
	prompt.WriteString("Available agents:\n")
	for _, a := range candidates {
		fmt.Fprintf(&prompt, "- %s (%s): %s\n", a.ID, a.Name, a.Description)
	}
	if len(recent) > 0 {
		prompt.WriteString("\nRecent conversation:\n")
		for _, turn := range recent {
			prompt.WriteString(turn)
			prompt.WriteString("\n")
		}
	}
	fmt.Fprintf(&prompt, "\nUser message:\n%s\n", text)

	chunks, err := c.provider.Complete(ctx, &agent.CompletionRequest{
		Model:  c.model,
		System: classifierSystemPrompt,
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: prompt.String()},
		},
		MaxTokens: 256,
	})
	if err != nil {
		return "", 0, "", fmt.Errorf("classifier: %w", err)
	}

	var out strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", 0, "", fmt.Errorf("classifier: %w", chunk.Error)
		}
		out.WriteString(chunk.Text)
	}

	verdict, err := parseVerdict(out.String())
	if err != nil {
		return "", 0, "", err
	}
	return verdict.AgentID, verdict.Confidence, verdict.Reasoning, nil
}

// parseVerdict extracts the first JSON object from the model's reply.
func parseVerdict(raw string) (*classifierVerdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("classifier: no JSON object in response")
	}

	var verdict classifierVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("classifier: malformed verdict: %w", err)
	}
	if verdict.AgentID == "" {
		return nil, fmt.Errorf("classifier: verdict missing agent_id")
	}
	return &verdict, nil
}
