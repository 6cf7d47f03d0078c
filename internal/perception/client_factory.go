package perception

import (
	"context"
	"fmt"

	"lhihi/internal/config"
	"lhihi/internal/logging"
	"lhihi/internal/policy"
)

// NewBackend builds the client for one policy backend.
func NewBackend(ctx context.Context, spec policy.BackendSpec, cfg *config.Config) (Backend, error) {
	httpTimeout := cfg.Timeouts.HTTPClientTimeout()

	var (
		b   Backend
		err error
	)
	switch spec.Provider {
	case policy.ProviderOpenRouter:
		b = NewOpenRouterClient(spec.ID, spec.Model, cfg.OpenRouter, httpTimeout)
	case policy.ProviderGemini:
		b, err = NewGeminiClient(ctx, spec.ID, spec.Model, spec.Thinking, cfg.Gemini)
	case policy.ProviderAnthropic:
		b = NewAnthropicClient(spec.ID, spec.Model, cfg.Anthropic)
	case policy.ProviderOllama:
		b, err = NewOllamaClient(spec.ID, spec.Model, cfg.Ollama, httpTimeout)
	default:
		return nil, fmt.Errorf("unknown provider %q for backend %q", spec.Provider, spec.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", spec.ID, err)
	}
	logging.PerceptionDebug("Backend %s ready: provider=%s model=%s tools=%v thinking=%v",
		spec.ID, spec.Provider, spec.Model, spec.Tools, spec.Thinking)
	return NewTracingBackend(b, 0), nil
}

// NewBackends builds every backend declared by the table, keyed by id.
func NewBackends(ctx context.Context, t *policy.Table, cfg *config.Config) (map[string]Backend, error) {
	out := make(map[string]Backend, len(t.Backends))
	for _, spec := range t.Backends {
		b, err := NewBackend(ctx, spec, cfg)
		if err != nil {
			return nil, err
		}
		out[spec.ID] = b
	}
	return out, nil
}
