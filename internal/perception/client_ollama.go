package perception

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"lhihi/internal/config"
	"lhihi/internal/logging"
)

// OllamaClient is a text-only backend over a local Ollama server.
type OllamaClient struct {
	id     string
	model  string
	client *ollama.Client
}

// NewOllamaClient creates a client for one policy backend.
func NewOllamaClient(id, model string, cfg config.OllamaConfig, httpTimeout time.Duration) (*OllamaClient, error) {
	host := cfg.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return &OllamaClient{
		id:     id,
		model:  model,
		client: ollama.NewClient(u, &http.Client{Timeout: httpTimeout}),
	}, nil
}

func (c *OllamaClient) ID() string { return c.id }

func (c *OllamaClient) Capabilities() Capabilities { return Capabilities{} }

// Generate runs a non-streaming chat call.
func (c *OllamaClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	start := time.Now()

	msgs := make([]ollama.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, ollama.Message{Role: string(m.Role), Content: m.Content})
	}
	stream := false
	chatReq := &ollama.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &stream,
	}

	var text strings.Builder
	err := c.client.Chat(ctx, chatReq, func(cr ollama.ChatResponse) error {
		text.WriteString(cr.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr ollama.StatusError
		if errors.As(err, &statusErr) {
			return nil, &BackendError{Backend: "Ollama", Status: statusErr.StatusCode, Body: statusErr.ErrorMessage, Err: err}
		}
		return nil, &BackendError{Backend: "Ollama", Err: err}
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return nil, fmt.Errorf("Ollama: %w", ErrEmptyResponse)
	}
	logging.Perception("[Ollama] %s completed in %v response_len=%d", c.id, time.Since(start), len(out))
	return &Response{Text: out, Model: model}, nil
}
