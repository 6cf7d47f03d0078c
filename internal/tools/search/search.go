// Package search implements the web_search tool over Google Custom Search
// or the DuckDuckGo HTML endpoint.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"lhihi/internal/cache"
	"lhihi/internal/config"
	"lhihi/internal/logging"
	"lhihi/internal/tools"
)

// ToolName is the name the model calls web search by.
const ToolName = "web_search"

const (
	msgHeader    = "Here are the top search results:\n"
	msgNoResults = "No relevant results found for your query."
	msgFailed    = "Error: Failed to fetch or process the web search results."
)

// ErrNotConfigured is returned by providers that lack credentials.
var ErrNotConfigured = errors.New("search provider is not configured")

// Result represents a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// StatusError reports a non-success HTTP status from the search API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search API returned status %d", e.Code)
}

// Provider runs one query and returns at most n results.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, n int) ([]Result, error)
}

// NewProvider builds the provider selected by cfg.
func NewProvider(ctx context.Context, cfg config.SearchConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "google":
		return NewGoogle(ctx, cfg)
	case "duckduckgo":
		return NewDuckDuckGo(cfg.Endpoint, nil), nil
	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.Provider)
	}
}

// Tool returns the web_search tool. c may be nil to disable caching.
func Tool(p Provider, c cache.Cache, numResults int) *tools.Tool {
	if numResults <= 0 {
		numResults = 5
	}
	return &tools.Tool{
		Name:        ToolName,
		Description: "Searches the web for a given query and returns the top results with titles, links and snippets. Use this for current events, facts, or any topic that needs up-to-date information.",
		Category:    tools.CategorySearch,
		Priority:    80,
		Schema: tools.ToolSchema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {Type: "string", Description: "The search query."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			query, err := tools.StringArg(args, "query")
			if err != nil {
				return "", err
			}
			if query == "" {
				return "", fmt.Errorf("%w: query", tools.ErrMissingRequiredArg)
			}
			return run(ctx, p, c, query, numResults), nil
		},
	}
}

func run(ctx context.Context, p Provider, c cache.Cache, query string, n int) string {
	key := cache.Key(ToolName+":"+p.Name(), query)
	if c != nil {
		if raw, ok := c.Get(ctx, key); ok {
			var cached []Result
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				logging.ToolsDebug("web_search cache hit for %q", query)
				return respond(ctx, cached)
			}
		}
	}

	results, err := p.Search(ctx, query, n)
	if err != nil {
		logging.ToolsError("web_search via %s failed: %v", p.Name(), err)
		var se *StatusError
		if errors.As(err, &se) {
			return fmt.Sprintf("Error: Could not fetch search results. API returned status: %d.", se.Code)
		}
		return msgFailed
	}

	if c != nil && len(results) > 0 {
		if raw, err := json.Marshal(results); err == nil {
			c.Set(ctx, key, string(raw))
		}
	}
	logging.Tools("web_search via %s: %d results for %q", p.Name(), len(results), query)
	return respond(ctx, results)
}

func respond(ctx context.Context, results []Result) string {
	if len(results) == 0 {
		return msgNoResults
	}
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	tools.RecordSources(ctx, urls...)
	return Format(results)
}

// Format renders results as numbered Title/URL/Snippet blocks.
func Format(results []Result) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		blocks = append(blocks, fmt.Sprintf("%d. Title: %s\n   URL: %s\n   Snippet: %s", i+1, r.Title, r.URL, r.Snippet))
	}
	return msgHeader + strings.Join(blocks, "\n\n")
}
