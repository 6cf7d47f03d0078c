package perception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"lhihi/internal/config"
	"lhihi/internal/logging"
	"lhihi/internal/types"
)

// OpenRouterClient talks to OpenRouter's OpenAI-compatible chat completions API.
type OpenRouterClient struct {
	id            string
	model         string
	apiKey        string
	client        *openai.Client
	limiter       *rate.Limiter
	temperature   float32
	maxTokens     int
	maxToolRounds int
}

// headerDoer adds the OpenRouter attribution headers to every request.
type headerDoer struct {
	client   *http.Client
	siteURL  string
	siteName string
}

func (d *headerDoer) Do(req *http.Request) (*http.Response, error) {
	if d.siteURL != "" {
		req.Header.Set("HTTP-Referer", d.siteURL)
	}
	if d.siteName != "" {
		req.Header.Set("X-Title", d.siteName)
	}
	return d.client.Do(req)
}

// NewOpenRouterClient creates a client for one policy backend.
func NewOpenRouterClient(id, model string, cfg config.OpenRouterConfig, httpTimeout time.Duration) *OpenRouterClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &headerDoer{
		client:   &http.Client{Timeout: httpTimeout},
		siteURL:  cfg.SiteURL,
		siteName: cfg.SiteName,
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = 4
	}

	return &OpenRouterClient{
		id:            id,
		model:         model,
		apiKey:        cfg.APIKey,
		client:        openai.NewClientWithConfig(oc),
		limiter:       rate.NewLimiter(limit, 1),
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		maxToolRounds: maxRounds,
	}
}

func (c *OpenRouterClient) ID() string { return c.id }

func (c *OpenRouterClient) Capabilities() Capabilities {
	return Capabilities{Tools: true}
}

// Generate sends the messages and, when tools are attached, runs the
// function-calling loop until the model answers in text or the round limit
// is reached.
func (c *OpenRouterClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if c.apiKey == "" {
		logging.PerceptionError("[OpenRouter] %s: API key not configured", c.id)
		return nil, fmt.Errorf("OpenRouter: %w", ErrMissingAPIKey)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	start := time.Now()
	logging.PerceptionDebug("[OpenRouter] Generate: backend=%s model=%s messages=%d tools=%v", c.id, model, len(req.Messages), req.Tools != nil)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	var defs []openai.Tool
	if req.Tools != nil {
		for _, d := range req.Tools.Definitions() {
			defs = append(defs, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        d.Name,
					Description: d.Description,
					Parameters:  d.Parameters.JSONSchema(),
				},
			})
		}
	}

	out := &Response{Model: model}
	for round := 0; ; round++ {
		chatReq := openai.ChatCompletionRequest{
			Model:       model,
			Messages:    messages,
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
		}
		// The last round withholds tools so the model has to answer.
		if len(defs) > 0 && round < c.maxToolRounds {
			chatReq.Tools = defs
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, c.wrapError(err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("OpenRouter: %w", ErrEmptyResponse)
		}

		msg := resp.Choices[0].Message
		// Calls made once tools were withheld are not run.
		if len(msg.ToolCalls) == 0 || req.Tools == nil || round >= c.maxToolRounds {
			out.Text = strings.TrimSpace(msg.Content)
			if out.Text == "" {
				return nil, fmt.Errorf("OpenRouter: %w", ErrEmptyResponse)
			}
			logging.Perception("[OpenRouter] %s completed in %v response_len=%d tool_calls=%d",
				c.id, time.Since(start), len(out.Text), len(out.ToolCalls))
			return out, nil
		}

		messages = append(messages, msg)
		for _, tc := range msg.ToolCalls {
			args := map[string]any{}
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					args = map[string]any{}
				}
			}
			result := req.Tools.Invoke(ctx, tc.Function.Name, args)
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args, Result: result})
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
			})
		}
	}
}

// wrapError renders upstream failures as "OpenRouter API error: <status> - <body>".
func (c *OpenRouterClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &BackendError{
			Backend: "OpenRouter",
			Status:  apiErr.HTTPStatusCode,
			Body:    apiErr.Message,
			Err:     err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &BackendError{
			Backend: "OpenRouter",
			Status:  reqErr.HTTPStatusCode,
			Body:    body,
			Err:     err,
		}
	}
	return &BackendError{Backend: "OpenRouter", Err: err}
}
