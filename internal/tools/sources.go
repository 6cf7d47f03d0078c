package tools

import (
	"context"
	"sync"
)

type sourcesKey struct{}

// Sources collects URLs that tools consulted while answering one request.
type Sources struct {
	mu   sync.Mutex
	urls []string
}

// WithSources attaches a fresh collector to ctx.
func WithSources(ctx context.Context) (context.Context, *Sources) {
	s := &Sources{}
	return context.WithValue(ctx, sourcesKey{}, s), s
}

// RecordSources appends urls to the collector in ctx, if any.
func RecordSources(ctx context.Context, urls ...string) {
	s, _ := ctx.Value(sourcesKey{}).(*Sources)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, urls...)
}

// URLs returns the recorded URLs in order.
func (s *Sources) URLs() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.urls))
	copy(out, s.urls)
	return out
}
