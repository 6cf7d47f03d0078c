// Package video implements the search_youtube tool over the YouTube Data API.
package video

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"lhihi/internal/cache"
	"lhihi/internal/config"
	"lhihi/internal/logging"
	"lhihi/internal/postprocess"
	"lhihi/internal/tools"
)

// ToolName is the name the model calls video search by.
const ToolName = "search_youtube"

const (
	msgNoResults = "No relevant YouTube videos found for your query."
	msgFailed    = "Error: Failed to fetch or process YouTube search results."
	watchURL     = "https://www.youtube.com/watch?v="
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("youtube search is not configured")

// Video is the top search hit.
type Video struct {
	ID           string
	Title        string
	ThumbnailURL string
}

// URL is the watch page of the video.
func (v Video) URL() string {
	return watchURL + v.ID
}

// Searcher finds the single best video for a query; nil Video means no hit.
type Searcher interface {
	TopVideo(ctx context.Context, query string) (*Video, error)
}

// YouTube queries search.list with part=snippet, type=video, maxResults=1.
type YouTube struct {
	svc *youtube.Service
}

// NewYouTube builds the client. Without an API key every search fails with
// ErrNotConfigured.
func NewYouTube(ctx context.Context, cfg config.VideoConfig) (*YouTube, error) {
	if cfg.APIKey == "" {
		return &YouTube{}, nil
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube client: %w", err)
	}
	return &YouTube{svc: svc}, nil
}

func (y *YouTube) TopVideo(ctx context.Context, query string) (*Video, error) {
	if y.svc == nil {
		return nil, ErrNotConfigured
	}
	resp, err := y.svc.Search.List([]string{"snippet"}).Q(query).Type("video").MaxResults(1).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}

	item := resp.Items[0]
	if item.Id == nil || item.Snippet == nil {
		return nil, fmt.Errorf("youtube result without id or snippet")
	}
	v := &Video{ID: item.Id.VideoId, Title: item.Snippet.Title}
	if th := item.Snippet.Thumbnails; th != nil && th.High != nil {
		v.ThumbnailURL = th.High.Url
	}
	return v, nil
}

// Tool returns the search_youtube tool. c may be nil to disable caching.
func Tool(s Searcher, c cache.Cache) *tools.Tool {
	return &tools.Tool{
		Name:        ToolName,
		Description: "Searches YouTube for videos based on a query. Use this when the user asks for a video, a tutorial, or something best explained with a video. Returns a :::youtube[URL|TITLE|THUMBNAIL]::: string to output unchanged.",
		Category:    tools.CategorySearch,
		Priority:    70,
		Schema: tools.ToolSchema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {Type: "string", Description: "The search query for YouTube."},
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
			return run(ctx, s, c, query), nil
		},
	}
}

func run(ctx context.Context, s Searcher, c cache.Cache, query string) string {
	key := cache.Key(ToolName, query)
	if c != nil {
		if hit, ok := c.Get(ctx, key); ok {
			logging.ToolsDebug("search_youtube cache hit for %q", query)
			return hit
		}
	}

	v, err := s.TopVideo(ctx, query)
	if err != nil {
		logging.ToolsError("search_youtube failed: %v", err)
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return fmt.Sprintf("Error: Could not fetch YouTube results. API returned status: %d.", apiErr.Code)
		}
		return msgFailed
	}
	if v == nil {
		return msgNoResults
	}

	out := postprocess.VideoMarker(v.URL(), v.Title, v.ThumbnailURL)
	if c != nil {
		c.Set(ctx, key, out)
	}
	return out
}
