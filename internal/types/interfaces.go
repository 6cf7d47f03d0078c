package types

import (
	"context"
)

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

// ToolParameters is a minimal JSON-schema object description.
type ToolParameters struct {
	Required   []string                 `json:"required"`
	Properties map[string]ToolParameter `json:"properties"`
}

// ToolParameter describes a single argument.
type ToolParameter struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// JSONSchema renders the parameters as a JSON-schema object.
func (p ToolParameters) JSONSchema() map[string]any {
	props := make(map[string]any, len(p.Properties))
	for name, prop := range p.Properties {
		props[name] = map[string]any{
			"type":        prop.Type,
			"description": prop.Description,
		}
	}
	required := p.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// ToolCall records one tool invocation made by a backend during generation.
type ToolCall struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
	Result string         `json:"result"`
}

// ToolExecutor runs tools on behalf of a backend.
// Invoke never fails: errors are rendered as "Error: ..." strings so the model
// can narrate them.
type ToolExecutor interface {
	Definitions() []ToolDefinition
	Invoke(ctx context.Context, name string, args map[string]any) string
}
