// Package toolset wires the hosted tools into a registry from configuration.
package toolset

import (
	"context"
	"fmt"
	"net/http"

	"lhihi/internal/cache"
	"lhihi/internal/config"
	"lhihi/internal/tools"
	"lhihi/internal/tools/image"
	"lhihi/internal/tools/search"
	"lhihi/internal/tools/tempmail"
	"lhihi/internal/tools/video"
)

// NewRegistry builds a registry holding web_search, generate_image,
// search_youtube and create_temp_mail. c may be nil to disable caching.
func NewRegistry(ctx context.Context, cfg *config.Config, c cache.Cache) (*tools.Registry, error) {
	reg := tools.NewRegistry()
	reg.SetTimeout(cfg.Timeouts.ToolTimeout())
	if err := RegisterAll(ctx, reg, cfg, c); err != nil {
		return nil, err
	}
	return reg, nil
}

// RegisterAll registers every hosted tool with the given registry.
func RegisterAll(ctx context.Context, reg *tools.Registry, cfg *config.Config, c cache.Cache) error {
	httpClient := &http.Client{Timeout: cfg.Timeouts.HTTPClientTimeout()}

	searchProvider, err := searchProvider(ctx, cfg, httpClient)
	if err != nil {
		return err
	}
	generator, err := image.NewGenerator(cfg.Image)
	if err != nil {
		return err
	}
	yt, err := video.NewYouTube(ctx, cfg.Video)
	if err != nil {
		return err
	}

	all := []*tools.Tool{
		search.Tool(searchProvider, c, cfg.Search.NumResults),
		image.Tool(generator, cfg.Image.DefaultWidth, cfg.Image.DefaultHeight),
		video.Tool(yt, c),
		tempmail.Tool(tempmail.NewClient(cfg.TempMail.BaseURL, httpClient)),
	}
	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("failed to register %s: %w", t.Name, err)
		}
	}
	return nil
}

func searchProvider(ctx context.Context, cfg *config.Config, client *http.Client) (search.Provider, error) {
	if cfg.Search.Provider == "duckduckgo" {
		return search.NewDuckDuckGo(cfg.Search.Endpoint, client), nil
	}
	return search.NewProvider(ctx, cfg.Search)
}
