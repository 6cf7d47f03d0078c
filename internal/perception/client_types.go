// Package perception holds the chat backends the router can call.
package perception

import (
	"context"
	"errors"
	"fmt"

	"lhihi/internal/types"
)

// ErrMissingAPIKey is returned by backends whose credentials are not configured.
var ErrMissingAPIKey = errors.New("API key not configured")

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("backend returned no content")

// Capabilities advertises what a backend can do.
type Capabilities struct {
	Tools    bool `json:"tools"`
	Thinking bool `json:"thinking"`
}

// Request is one backend call. Tools and Thinking are ignored by backends
// that lack the capability.
type Request struct {
	Model    string
	Messages []types.Message
	Tools    types.ToolExecutor
	Thinking bool
}

// Response is the raw backend output before post-processing.
type Response struct {
	Text      string
	Thinking  string
	ToolCalls []types.ToolCall
	Model     string
}

// Backend is a hosted LLM endpoint.
type Backend interface {
	ID() string
	Capabilities() Capabilities
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// BackendError carries the upstream status of a failed call.
type BackendError struct {
	Backend string
	Status  int
	Body    string
	Err     error
}

func (e *BackendError) Error() string {
	switch {
	case e.Status > 0:
		return fmt.Sprintf("%s API error: %d - %s", e.Backend, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Backend, e.Err)
	}
	return e.Backend + ": backend error"
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// splitSystem separates leading system messages from the conversation.
func splitSystem(msgs []types.Message) (system string, rest []types.Message) {
	for i, m := range msgs {
		if m.Role != types.RoleSystem {
			return system, msgs[i:]
		}
		if system != "" {
			system += "\n\n"
		}
		system += m.Content
	}
	return system, nil
}
