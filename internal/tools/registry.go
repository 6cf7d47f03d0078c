package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"lhihi/internal/logging"
	"lhihi/internal/types"
)

var (
	ErrToolNotFound          = errors.New("tool not found")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrToolNameEmpty         = errors.New("tool has no name")
	ErrToolExecuteNil        = errors.New("tool has no execute function")
)

// defaultPriority is assigned to tools registered without one.
const defaultPriority = 50

// Registry is the set of hosted tools handed to a backend. It implements
// types.ToolExecutor and is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Tool
	timeout time.Duration // per Invoke; zero leaves only the caller's ctx
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// SetTimeout sets the budget of every tool call.
func (r *Registry) SetTimeout(d time.Duration) {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

// Register adds a tool. Names are unique.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[tool.Name]; dup {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	if tool.Priority == 0 {
		tool.Priority = defaultPriority
	}
	r.tools[tool.Name] = tool

	logging.ToolsDebug("Registered tool %s (category=%s, priority=%d)", tool.Name, tool.Category, tool.Priority)
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("register tool %s: %v", tool.Name, err))
	}
}

// Get returns the named tool or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns the tools by descending priority, ties broken by name.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Names returns the registered names in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions describes every tool for a backend, highest priority first.
func (r *Registry) Definitions() []types.ToolDefinition {
	all := r.All()
	defs := make([]types.ToolDefinition, len(all))
	for i, t := range all {
		defs[i] = t.Definition()
	}
	return defs
}

// Invoke runs a tool and always returns a string. Any failure becomes an
// "Error: ..." result so the model can tell the user what went wrong.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) string {
	res, err := r.Execute(ctx, name, args)
	if err != nil {
		return errorResult(name, err)
	}
	return res.Result
}

// Execute runs a tool by name under the registry timeout.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	start := time.Now()
	finish := func(result string, err error) (*ToolResult, error) {
		elapsed := time.Since(start)
		logging.AuditFrom(ctx).ToolExec(name, elapsed, err == nil)
		if err != nil {
			logging.ToolsError("Tool %s failed after %v: %v", name, elapsed, err)
		} else {
			logging.ToolsDebug("Tool %s finished in %v", name, elapsed)
		}
		return &ToolResult{ToolName: name, Result: result, Error: err, DurationMs: elapsed.Milliseconds()}, err
	}

	for _, required := range tool.Schema.Required {
		if _, ok := args[required]; !ok {
			return finish("", fmt.Errorf("%w: %s", ErrMissingRequiredArg, required))
		}
	}

	r.mu.RLock()
	timeout := r.timeout
	r.mu.RUnlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := tool.Execute(ctx, args)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return finish(result, err)
}

func errorResult(name string, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Error: the %s tool timed out.", name)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("Error: the %s tool was cancelled.", name)
	}
	if msg := err.Error(); strings.HasPrefix(msg, "Error:") {
		return msg
	}
	return "Error: " + err.Error()
}
