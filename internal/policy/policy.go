// Package policy holds the versioned routing policy table: keyword sets,
// reasoning patterns, backend definitions, route bindings and model hints.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"lhihi/internal/types"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// ErrInvalidPolicy is wrapped by every validation failure.
var ErrInvalidPolicy = errors.New("invalid policy")

// Providers known to the backend factory.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"
)

// toolCapable lists providers whose clients run a tool-calling loop.
var toolCapable = map[string]bool{
	ProviderOpenRouter: true,
	ProviderGemini:     true,
}

// thinkingCapable lists providers that can return a reasoning trace.
var thinkingCapable = map[string]bool{
	ProviderGemini: true,
}

// Table is one version of the routing policy.
type Table struct {
	Version  string        `yaml:"version" json:"version"`
	Keywords Keywords      `yaml:"keywords" json:"keywords"`
	Patterns Patterns      `yaml:"patterns" json:"patterns"`
	Backends []BackendSpec `yaml:"backends" json:"backends"`
	Routes   Routes        `yaml:"routes" json:"routes"`
	Hints    []Hint        `yaml:"hints" json:"hints"`
}

// Keywords are matched as lower-case substrings of the user input.
type Keywords struct {
	Image     []string `yaml:"image" json:"image"`
	Search    []string `yaml:"search" json:"search"`
	Video     []string `yaml:"video" json:"video"`
	TempMail  []string `yaml:"temp_mail" json:"temp_mail"`
	Reasoning []string `yaml:"reasoning" json:"reasoning"`
}

// Patterns are the regular expressions of the reasoning heuristic.
// Symbols and Digits must both match; Contrast matches on its own.
type Patterns struct {
	Symbols  string `yaml:"symbols" json:"symbols"`
	Digits   string `yaml:"digits" json:"digits"`
	Contrast string `yaml:"contrast" json:"contrast"`
}

// BackendSpec declares one hosted backend.
type BackendSpec struct {
	ID       string `yaml:"id" json:"id"`
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	Tools    bool   `yaml:"tools" json:"tools"`
	Thinking bool   `yaml:"thinking" json:"thinking"`
}

// Routes binds each route to a backend id.
type Routes struct {
	Tools     string `yaml:"tools" json:"tools"`
	Reasoning string `yaml:"reasoning" json:"reasoning"`
	Default   string `yaml:"default" json:"default"`
	Fallback  string `yaml:"fallback" json:"fallback"`
}

// Hint maps a caller-supplied model id to a model on one route.
type Hint struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description"`
	Route       types.Route `yaml:"route" json:"route"`
	Model       string      `yaml:"model" json:"model"`

	// ReasoningOverride sends reasoning-looking input to the hinted model on
	// its own route instead of the thinking backend.
	ReasoningOverride bool `yaml:"reasoning_override" json:"reasoning_override"`
}

// Default returns the built-in policy table.
func Default() *Table {
	t, err := Parse(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in policy is invalid: %v", err))
	}
	return t
}

// Load reads, normalizes and validates a policy table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return Parse(data)
}

// Parse decodes, normalizes and validates a policy table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// normalize lower-cases and trims keywords so matching can lower-case only the input.
func (t *Table) normalize() {
	for _, set := range []*[]string{
		&t.Keywords.Image, &t.Keywords.Search, &t.Keywords.Video,
		&t.Keywords.TempMail, &t.Keywords.Reasoning,
	} {
		out := (*set)[:0]
		for _, kw := range *set {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				out = append(out, kw)
			}
		}
		*set = out
	}
}

// Validate checks internal consistency of the table.
func (t *Table) Validate() error {
	if strings.TrimSpace(t.Version) == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidPolicy)
	}

	for name, expr := range map[string]string{
		"symbols":  t.Patterns.Symbols,
		"digits":   t.Patterns.Digits,
		"contrast": t.Patterns.Contrast,
	} {
		if expr == "" {
			continue
		}
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("%w: pattern %s: %v", ErrInvalidPolicy, name, err)
		}
	}

	seen := make(map[string]bool, len(t.Backends))
	for _, b := range t.Backends {
		if b.ID == "" {
			return fmt.Errorf("%w: backend without id", ErrInvalidPolicy)
		}
		if seen[b.ID] {
			return fmt.Errorf("%w: duplicate backend %q", ErrInvalidPolicy, b.ID)
		}
		seen[b.ID] = true
		switch b.Provider {
		case ProviderOpenRouter, ProviderGemini, ProviderAnthropic, ProviderOllama:
		default:
			return fmt.Errorf("%w: backend %q has unknown provider %q", ErrInvalidPolicy, b.ID, b.Provider)
		}
		if b.Model == "" {
			return fmt.Errorf("%w: backend %q has no model", ErrInvalidPolicy, b.ID)
		}
		if b.Tools && !toolCapable[b.Provider] {
			return fmt.Errorf("%w: provider %s cannot run tools (backend %q)", ErrInvalidPolicy, b.Provider, b.ID)
		}
		if b.Thinking && !thinkingCapable[b.Provider] {
			return fmt.Errorf("%w: provider %s has no thinking mode (backend %q)", ErrInvalidPolicy, b.Provider, b.ID)
		}
	}

	for route, id := range map[string]string{
		"tools":     t.Routes.Tools,
		"reasoning": t.Routes.Reasoning,
		"default":   t.Routes.Default,
		"fallback":  t.Routes.Fallback,
	} {
		if id == "" {
			return fmt.Errorf("%w: route %s is not bound", ErrInvalidPolicy, route)
		}
		if !seen[id] {
			return fmt.Errorf("%w: route %s references unknown backend %q", ErrInvalidPolicy, route, id)
		}
	}
	for route, id := range map[string]string{"tools": t.Routes.Tools, "fallback": t.Routes.Fallback} {
		if b, _ := t.Backend(id); !b.Tools {
			return fmt.Errorf("%w: route %s needs a tool-capable backend, %q is not", ErrInvalidPolicy, route, id)
		}
	}

	hintIDs := make(map[string]bool, len(t.Hints))
	for _, h := range t.Hints {
		if h.ID == "" || h.Model == "" {
			return fmt.Errorf("%w: hint needs id and model", ErrInvalidPolicy)
		}
		if hintIDs[h.ID] {
			return fmt.Errorf("%w: duplicate hint %q", ErrInvalidPolicy, h.ID)
		}
		hintIDs[h.ID] = true
		switch h.Route {
		case types.RouteTools, types.RouteReasoning, types.RouteDefault:
		default:
			return fmt.Errorf("%w: hint %q has unknown route %q", ErrInvalidPolicy, h.ID, h.Route)
		}
	}

	return nil
}

// Backend returns the backend spec with the given id.
func (t *Table) Backend(id string) (BackendSpec, bool) {
	for _, b := range t.Backends {
		if b.ID == id {
			return b, true
		}
	}
	return BackendSpec{}, false
}

// BackendFor returns the backend bound to a route.
func (t *Table) BackendFor(route types.Route) (BackendSpec, bool) {
	switch route {
	case types.RouteTools:
		return t.Backend(t.Routes.Tools)
	case types.RouteReasoning:
		return t.Backend(t.Routes.Reasoning)
	case types.RouteDefault:
		return t.Backend(t.Routes.Default)
	case types.RouteFallback:
		return t.Backend(t.Routes.Fallback)
	}
	return BackendSpec{}, false
}

// Hint looks up a model hint by id.
func (t *Table) Hint(id string) (Hint, bool) {
	for _, h := range t.Hints {
		if h.ID == id {
			return h, true
		}
	}
	return Hint{}, false
}

// ResolveHint returns the model to use on a route for a caller hint.
// A hint only applies to the route it names; anything else gets the
// backend's own model. The fallback route shares the tools route's hints.
func (t *Table) ResolveHint(hint string, route types.Route) string {
	b, ok := t.BackendFor(route)
	if !ok {
		return ""
	}
	target := route
	if route == types.RouteFallback {
		target = types.RouteTools
	}
	if h, found := t.Hint(hint); found && h.Route == target {
		return h.Model
	}
	return b.Model
}

// ReasoningOverride reports whether the hint takes reasoning traffic away
// from the thinking backend.
func (t *Table) ReasoningOverride(hint string) (Hint, bool) {
	h, ok := t.Hint(hint)
	if !ok || !h.ReasoningOverride {
		return Hint{}, false
	}
	return h, true
}
