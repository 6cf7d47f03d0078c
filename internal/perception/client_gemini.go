package perception

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"lhihi/internal/config"
	"lhihi/internal/logging"
	"lhihi/internal/types"
)

// contentGenerator is the slice of *genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient calls Google Gemini through the GenAI SDK. It supports
// function calling and, when thinking is enabled, returns thought parts as a
// separate reasoning trace.
type GeminiClient struct {
	id              string
	model           string
	thinking        bool
	temperature     float32
	maxOutputTokens int32
	thinkingBudget  int32
	maxToolRounds   int
	models          contentGenerator
}

// NewGeminiClient creates a client for one policy backend. A missing API key
// is not an error here; Generate reports it.
func NewGeminiClient(ctx context.Context, id, model string, thinking bool, cfg config.GeminiConfig) (*GeminiClient, error) {
	c := newGeminiClient(id, model, thinking, cfg, nil)
	if cfg.APIKey == "" {
		return c, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	c.models = client.Models
	return c, nil
}

func newGeminiClient(id, model string, thinking bool, cfg config.GeminiConfig, models contentGenerator) *GeminiClient {
	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = 4
	}
	return &GeminiClient{
		id:              id,
		model:           model,
		thinking:        thinking,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		thinkingBudget:  cfg.ThinkingBudget,
		maxToolRounds:   rounds,
		models:          models,
	}
}

func (c *GeminiClient) ID() string { return c.id }

func (c *GeminiClient) Capabilities() Capabilities {
	return Capabilities{Tools: true, Thinking: c.thinking}
}

// Generate runs one chat completion, looping over function calls.
func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if c.models == nil {
		logging.PerceptionError("[Gemini] %s: API key not configured", c.id)
		return nil, fmt.Errorf("Gemini: %w", ErrMissingAPIKey)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	thinking := req.Thinking && c.thinking
	start := time.Now()
	logging.PerceptionDebug("[Gemini] Generate: backend=%s model=%s messages=%d tools=%v thinking=%v",
		c.id, model, len(req.Messages), req.Tools != nil, thinking)

	system, rest := splitSystem(req.Messages)
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.RoleUser
		if m.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxOutputTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if thinking {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
		if c.thinkingBudget > 0 {
			cfg.ThinkingConfig.ThinkingBudget = genai.Ptr(c.thinkingBudget)
		}
	}
	var tools []*genai.Tool
	if req.Tools != nil {
		if decls := functionDeclarations(req.Tools.Definitions()); len(decls) > 0 {
			tools = []*genai.Tool{{FunctionDeclarations: decls}}
		}
	}

	out := &Response{Model: model}
	var thoughts []string
	for round := 0; ; round++ {
		cfg.Tools = nil
		if round < c.maxToolRounds {
			cfg.Tools = tools
		}

		resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			return nil, &BackendError{Backend: "Gemini", Err: err}
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return nil, fmt.Errorf("Gemini: %w", ErrEmptyResponse)
		}

		cand := resp.Candidates[0].Content
		var text strings.Builder
		var calls []*genai.FunctionCall
		for _, part := range cand.Parts {
			switch {
			case part.FunctionCall != nil:
				calls = append(calls, part.FunctionCall)
			case part.Thought:
				if t := strings.TrimSpace(part.Text); t != "" {
					thoughts = append(thoughts, t)
				}
			default:
				text.WriteString(part.Text)
			}
		}

		if len(calls) == 0 || req.Tools == nil || round >= c.maxToolRounds {
			out.Text = strings.TrimSpace(text.String())
			out.Thinking = strings.Join(thoughts, "\n\n")
			if out.Text == "" {
				return nil, fmt.Errorf("Gemini: %w", ErrEmptyResponse)
			}
			logging.Perception("[Gemini] %s completed in %v response_len=%d thinking_len=%d tool_calls=%d",
				c.id, time.Since(start), len(out.Text), len(out.Thinking), len(out.ToolCalls))
			return out, nil
		}

		contents = append(contents, cand)
		parts := make([]*genai.Part, 0, len(calls))
		for _, fc := range calls {
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			result := req.Tools.Invoke(ctx, fc.Name, args)
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: fc.ID, Name: fc.Name, Args: args, Result: result})
			parts = append(parts, genai.NewPartFromFunctionResponse(fc.Name, map[string]any{"result": result}))
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}
}

// functionDeclarations converts tool definitions into Gemini declarations.
func functionDeclarations(defs []types.ToolDefinition) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		props := make(map[string]*genai.Schema, len(d.Parameters.Properties))
		for name, p := range d.Parameters.Properties {
			props[name] = &genai.Schema{Type: schemaType(p.Type), Description: p.Description}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   d.Parameters.Required,
			},
		})
	}
	return decls
}

func schemaType(t string) genai.Type {
	switch strings.ToLower(t) {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeString
}
