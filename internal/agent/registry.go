package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (1MB).
	MaxToolParamsSize = 1 << 20
)

// ToolRegistry manages the tools available to one agent, with thread-safe
// registration and lookup. Invalid parameters surface as error results the
// model can react to; an unknown tool name is ErrToolNotFound.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry creates a new empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry by its name, replacing any
// existing tool with the same name.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	delete(r.schemas, tool.Name())
}

// Get returns a tool by name and whether it was found.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// DisplayName resolves the human-readable name for a tool, falling back
// to the raw name when the tool is unknown.
func (r *ToolRegistry) DisplayName(name string) string {
	if tool, ok := r.Get(name); ok {
		if display := tool.DisplayName(); display != "" {
			return display
		}
	}
	return name
}

// AsLLMTools returns all registered tools for passing to a provider.
func (r *ToolRegistry) AsLLMTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}

// Execute runs a tool by name with the given JSON parameters. Parameters
// are validated against the tool's schema before execution; validation
// failures come back as error results the model can react to. An unknown
// name returns an error wrapping ErrToolNotFound.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return &ToolResult{
			Content: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength),
			IsError: true,
		}, nil
	}
	if len(params) > MaxToolParamsSize {
		return &ToolResult{
			Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize),
			IsError: true,
		}, nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if err := r.validateInput(tool, params); err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("invalid parameters for %s: %v", name, err),
			IsError: true,
		}, nil
	}

	return tool.Execute(ctx, params)
}

// validateInput checks params against the tool's JSON schema. Tools
// without a schema skip validation.
func (r *ToolRegistry) validateInput(tool Tool, params json.RawMessage) error {
	raw := tool.Schema()
	if len(raw) == 0 {
		return nil
	}

	schema, err := r.compiledSchema(tool.Name(), raw)
	if err != nil {
		// A broken schema is a registration bug, not the model's fault.
		return nil
	}

	var doc any
	input := params
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("parameters are not valid JSON: %w", err)
	}
	return schema.Validate(doc)
}

func (r *ToolRegistry) compiledSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if ok {
		return schema, nil
	}

	compiler := jsonschema.NewCompiler()
	url := "inmem://tools/" + name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.schemas[name] = schema
	r.mu.Unlock()
	return schema, nil
}
