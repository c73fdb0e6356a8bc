package domain

import (
	"context"
	"sort"
)

// Tool is a self-describing capability the model may invoke by name.
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// ToolResult is what one execution hands back: text the model reads, plus the
// citations that text came from. Sources travel with the result so concurrent
// executions never share state.
type ToolResult struct {
	Text    string
	Sources []Source
}

// ParamSpec describes one tool argument.
type ParamSpec struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// ToolDefinition is the schema sent to the model.
type ToolDefinition struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
}

// InputSchema renders the parameters as a JSON Schema object, the shape both
// the Anthropic and Ollama tool APIs expect.
func (d ToolDefinition) InputSchema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	var required []string
	for name, p := range d.Parameters {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
		if p.Required {
			required = append(required, name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	return schema
}
