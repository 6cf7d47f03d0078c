package search

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"lhihi/internal/config"
)

// Google queries the Custom Search JSON API.
type Google struct {
	svc      *customsearch.Service
	engineID string
}

// NewGoogle builds the client. Without an API key or engine id the provider
// is created but every search fails with ErrNotConfigured.
func NewGoogle(ctx context.Context, cfg config.SearchConfig) (*Google, error) {
	g := &Google{engineID: cfg.EngineID}
	if cfg.APIKey == "" {
		return g, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create custom search client: %w", err)
	}
	g.svc = svc
	return g, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) Search(ctx context.Context, query string, n int) ([]Result, error) {
	if g.svc == nil || g.engineID == "" {
		return nil, ErrNotConfigured
	}

	resp, err := g.svc.Cse.List().Cx(g.engineID).Q(query).Num(int64(n)).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Code: apiErr.Code}
		}
		return nil, err
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, Result{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}
