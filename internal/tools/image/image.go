// Package image implements the generate_image tool.
package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"

	"lhihi/internal/config"
	"lhihi/internal/logging"
	"lhihi/internal/postprocess"
	"lhihi/internal/tools"
)

// ToolName is the name the model calls image generation by.
const ToolName = "generate_image"

const (
	defaultPollinationsURL = "https://image.pollinations.ai"
	maxDimension           = 2048
)

// Generator turns a prompt into an image URL (http(s) or data URI).
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, width, height int) (string, error)
}

// NewGenerator builds the generator selected by cfg.
func NewGenerator(cfg config.ImageConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "pollinations":
		return NewPollinations(cfg.BaseURL), nil
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown image provider: %s", cfg.Provider)
	}
}

// Pollinations builds a deterministic prompt URL; the image renders on first fetch.
type Pollinations struct {
	baseURL string
}

// NewPollinations creates the provider. Empty baseURL uses the public service.
func NewPollinations(baseURL string) *Pollinations {
	if baseURL == "" {
		baseURL = defaultPollinationsURL
	}
	return &Pollinations{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *Pollinations) Name() string { return "pollinations" }

func (p *Pollinations) Generate(_ context.Context, prompt string, width, height int) (string, error) {
	return fmt.Sprintf("%s/prompt/%s?width=%d&height=%d", p.baseURL, encodeURIComponent(prompt), width, height), nil
}

// OpenAI calls an OpenAI-compatible images endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	hasKey bool
}

// NewOpenAI creates the provider. Empty baseURL uses api.openai.com.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, hasKey: apiKey != ""}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Generate(ctx context.Context, prompt string, width, height int) (string, error) {
	if !o.hasKey {
		return "", errors.New("image generation is not configured")
	}
	resp, err := o.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          o.model,
		N:              1,
		Size:           fmt.Sprintf("%dx%d", width, height),
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("image request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", errors.New("image response contained no data")
	}
	img := resp.Data[0]
	switch {
	case img.URL != "":
		return img.URL, nil
	case img.B64JSON != "":
		if _, err := base64.StdEncoding.DecodeString(img.B64JSON); err != nil {
			return "", fmt.Errorf("invalid base64 image: %w", err)
		}
		return "data:image/png;base64," + img.B64JSON, nil
	}
	return "", errors.New("image response contained neither url nor b64_json")
}

// Tool returns the generate_image tool.
func Tool(g Generator, defaultWidth, defaultHeight int) *tools.Tool {
	if defaultWidth <= 0 {
		defaultWidth = 512
	}
	if defaultHeight <= 0 {
		defaultHeight = 512
	}
	return &tools.Tool{
		Name:        ToolName,
		Description: "Generates an image from a text description. Use this when the user asks to create, draw, or generate an image. Width and height are optional. Returns an :::image[URL]::: string to output as the final response.",
		Category:    tools.CategoryMedia,
		Priority:    60,
		Schema: tools.ToolSchema{
			Required: []string{"prompt"},
			Properties: map[string]tools.Property{
				"prompt": {Type: "string", Description: "A detailed description of the image to generate."},
				"width":  {Type: "integer", Description: fmt.Sprintf("The width of the image. Defaults to %d.", defaultWidth), Default: defaultWidth},
				"height": {Type: "integer", Description: fmt.Sprintf("The height of the image. Defaults to %d.", defaultHeight), Default: defaultHeight},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			prompt, err := tools.StringArg(args, "prompt")
			if err != nil {
				return "", err
			}
			if prompt == "" {
				return "", fmt.Errorf("%w: prompt", tools.ErrMissingRequiredArg)
			}
			width, err := dimension(args, "width", defaultWidth)
			if err != nil {
				return "", err
			}
			height, err := dimension(args, "height", defaultHeight)
			if err != nil {
				return "", err
			}

			imageURL, err := g.Generate(ctx, prompt, width, height)
			if err != nil {
				logging.ToolsError("generate_image via %s failed: %v", g.Name(), err)
				return "Error: An unexpected error occurred while trying to generate the image.", nil
			}
			logging.Tools("generate_image via %s: %dx%d", g.Name(), width, height)
			return postprocess.ImageMarker(imageURL), nil
		},
	}
}

// dimension reads a size argument; zero or absent means the default.
func dimension(args map[string]any, name string, def int) (int, error) {
	v, err := tools.IntArg(args, name, def)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return def, nil
	}
	if v < 0 || v > maxDimension {
		return 0, fmt.Errorf("%s must be between 1 and %d", name, maxDimension)
	}
	return v, nil
}

var uriComponentFixups = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeURIComponent escapes everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeURIComponent(s string) string {
	return uriComponentFixups.Replace(url.QueryEscape(s))
}
