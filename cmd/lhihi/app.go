package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"lhihi/internal/cache"
	"lhihi/internal/config"
	"lhihi/internal/perception"
	"lhihi/internal/policy"
	"lhihi/internal/router"
	"lhihi/internal/session"
	"lhihi/internal/store"
	"lhihi/internal/tools/toolset"
)

// app is the wired set of services a command runs against.
type app struct {
	cfg      *config.Config
	policies *policy.Holder
	router   *router.Router
	cache    cache.Cache

	// Set only when opened with the store.
	store    *store.Store
	sessions *session.Service
}

type appOptions struct {
	withStore bool
}

// newApp loads the policy table, builds the backends and tools, and
// optionally opens the conversation store.
func newApp(ctx context.Context, c *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: c, policies: policy.NewHolder(nil)}
	if c.Policy.Path != "" {
		if err := a.policies.Reload(c.Policy.Path); err != nil {
			return nil, err
		}
	}

	backends, err := perception.NewBackends(ctx, a.policies.Current(), c)
	if err != nil {
		return nil, err
	}

	a.cache, err = cache.New(c)
	if err != nil {
		return nil, err
	}
	registry, err := toolset.NewRegistry(ctx, c, a.cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	a.router = router.New(a.policies, backends, router.Config{
		RequestTimeout: c.Timeouts.RequestTimeout(),
		BackendTimeout: c.Timeouts.BackendTimeout(),
		Tools:          registry,
		Factory: func(ctx context.Context, spec policy.BackendSpec) (perception.Backend, error) {
			return perception.NewBackend(ctx, spec, c)
		},
	})

	if opts.withStore {
		a.store, err = store.Open(ctx, c.Store)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sessions = session.NewService(a.store, a.router)
	}

	logger.Info("app ready",
		zap.String("policy_version", a.policies.Current().Version),
		zap.Int("backends", len(backends)),
		zap.Int("tools", registry.Count()),
		zap.Bool("store", opts.withStore),
	)
	return a, nil
}

// Close releases the store and any cache connection.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}
	if closer, ok := a.cache.(io.Closer); ok {
		_ = closer.Close()
	}
}
