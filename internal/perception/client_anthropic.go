package perception

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"lhihi/internal/config"
	"lhihi/internal/logging"
	"lhihi/internal/types"
)

// AnthropicClient is a text-only backend over the Anthropic Messages API.
type AnthropicClient struct {
	id        string
	model     string
	apiKey    string
	maxTokens int64
	client    anthropic.Client
}

// NewAnthropicClient creates a client for one policy backend.
func NewAnthropicClient(id, model string, cfg config.AnthropicConfig) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicClient{
		id:        id,
		model:     model,
		apiKey:    cfg.APIKey,
		maxTokens: maxTokens,
		client:    anthropic.NewClient(opts...),
	}
}

func (c *AnthropicClient) ID() string { return c.id }

func (c *AnthropicClient) Capabilities() Capabilities { return Capabilities{} }

// Generate sends the conversation and concatenates the text blocks of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if c.apiKey == "" {
		logging.PerceptionError("[Anthropic] %s: API key not configured", c.id)
		return nil, fmt.Errorf("Anthropic: %w", ErrMissingAPIKey)
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	start := time.Now()

	system, rest := splitSystem(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: c.maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range rest {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == types.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &BackendError{Backend: "Anthropic", Status: apiErr.StatusCode, Body: apiErr.Error(), Err: err}
		}
		return nil, &BackendError{Backend: "Anthropic", Err: err}
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, fmt.Errorf("Anthropic: %w", ErrEmptyResponse)
	}
	logging.Perception("[Anthropic] %s completed in %v response_len=%d", c.id, time.Since(start), len(text))
	return &Response{Text: text, Model: model}, nil
}
