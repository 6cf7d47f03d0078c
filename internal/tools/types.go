// Package tools provides the hosted tools a tool-capable backend may call.
//
// Each tool is standalone and registered in a Registry, which the router
// hands to the backend as its types.ToolExecutor:
//
//	Router → Backend tool loop → Registry.Invoke() → Tool.Execute()
package tools

import (
	"context"

	"lhihi/internal/types"
)

// ToolCategory classifies tools for listing and logging.
type ToolCategory string

const (
	// CategorySearch covers web and video search.
	CategorySearch ToolCategory = "/search"

	// CategoryMedia covers image generation.
	CategoryMedia ToolCategory = "/media"

	// CategoryUtility covers account helpers such as disposable email.
	CategoryUtility ToolCategory = "/utility"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Expected failures that the model should narrate are returned as result
// strings; a Go error is reserved for everything else.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines a hosted tool.
type Tool struct {
	// Name is the unique identifier the model calls the tool by.
	Name string

	// Description explains what the tool does. Sent to the model.
	Description string

	// Category classifies the tool.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// Priority orders Definitions. Higher first (default 50).
	Priority int
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Definition converts the tool into the backend-facing description.
func (t *Tool) Definition() types.ToolDefinition {
	props := make(map[string]types.ToolParameter, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		props[name] = types.ToolParameter{Type: p.Type, Description: p.Description}
	}
	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters: types.ToolParameters{
			Required:   t.Schema.Required,
			Properties: props,
		},
	}
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the string output from the tool.
	Result string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}
