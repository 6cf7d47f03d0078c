// Package router turns one generation request into one backend call, or two
// when the first one fails.
//
// Per request:
//
//	classify → pick route → call backend (timeout) → [fallback once] → post-process
//
// The router never returns an error to its caller. When every attempt fails
// the result carries the fixed apology and Degraded is set.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lhihi/internal/intent"
	"lhihi/internal/logging"
	"lhihi/internal/perception"
	"lhihi/internal/policy"
	"lhihi/internal/postprocess"
	"lhihi/internal/prompt"
	"lhihi/internal/tools"
	"lhihi/internal/types"
)

// Apology is the response text when no backend produced an answer.
const Apology = "Sorry, I encountered an error. Please try again."

// ErrBackendUnavailable is returned when a route points at a backend that
// was never built and cannot be built.
var ErrBackendUnavailable = errors.New("backend unavailable")

// BackendFactory builds a backend declared by a reloaded policy table.
type BackendFactory func(ctx context.Context, spec policy.BackendSpec) (perception.Backend, error)

// Config holds the router's budgets and collaborators.
type Config struct {
	// RequestTimeout bounds one Generate call, fallback included.
	RequestTimeout time.Duration

	// BackendTimeout bounds each backend call.
	BackendTimeout time.Duration

	// Tools is attached to tool-capable backends on the tools, thinking and
	// fallback paths. Nil disables tool use.
	Tools types.ToolExecutor

	// Composer builds prompts. Nil uses prompt.NewComposer().
	Composer *prompt.Composer

	// Factory builds backends that are missing from the initial set.
	Factory BackendFactory
}

// DefaultConfig returns the standard budgets.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 120 * time.Second,
		BackendTimeout: 55 * time.Second,
	}
}

// Router routes generation requests across the backends of the active policy.
type Router struct {
	policies *policy.Holder
	config   Config
	composer *prompt.Composer

	mu         sync.RWMutex
	backends   map[string]perception.Backend
	classifier *intent.Classifier
	classified *policy.Table
}

// New creates a router over the given backends, keyed by policy backend id.
func New(policies *policy.Holder, backends map[string]perception.Backend, cfg Config) *Router {
	def := DefaultConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = def.BackendTimeout
	}
	composer := cfg.Composer
	if composer == nil {
		composer = prompt.NewComposer()
	}
	if policies == nil {
		policies = policy.NewHolder(nil)
	}
	bs := make(map[string]perception.Backend, len(backends))
	for id, b := range backends {
		bs[id] = b
	}
	return &Router{
		policies: policies,
		config:   cfg,
		composer: composer,
		backends: bs,
	}
}

// Policy returns the active policy table.
func (r *Router) Policy() *policy.Table {
	return r.policies.Current()
}

// Classify runs the intent classifier of the active policy.
func (r *Router) Classify(input string) intent.Classification {
	return r.classifierFor(r.policies.Current()).Classify(input)
}

// Decide reports the route, backend and model a request would use.
func (r *Router) Decide(req types.GenerationRequest) types.RouteDecision {
	return r.plan(r.policies.Current(), req).decision
}

// attempt is one planned backend call.
type attempt struct {
	decision types.RouteDecision
	spec     policy.BackendSpec
	mode     prompt.Mode
	tools    bool
	thinking bool
}

func (r *Router) plan(tbl *policy.Table, req types.GenerationRequest) attempt {
	cls := r.classifierFor(tbl).Classify(req.UserInput)
	route := cls.Route()

	a := attempt{
		decision: types.RouteDecision{
			UseTools:      cls.NeedsTools,
			UseReasoning:  cls.NeedsReasoning,
			Route:         route,
			PolicyVersion: tbl.Version,
		},
		mode: prompt.ModeChat,
	}

	switch route {
	case types.RouteTools:
		a.spec, _ = tbl.BackendFor(types.RouteTools)
		a.decision.Model = tbl.ResolveHint(req.ModelHint, types.RouteTools)
		a.mode = prompt.ModeTools
		a.tools = true
	case types.RouteReasoning:
		if h, ok := tbl.ReasoningOverride(req.ModelHint); ok {
			a.spec, _ = tbl.BackendFor(h.Route)
			a.decision.Model = h.Model
			break
		}
		a.spec, _ = tbl.BackendFor(types.RouteReasoning)
		a.decision.Model = tbl.ResolveHint(req.ModelHint, types.RouteReasoning)
		a.mode = prompt.ModeThinking
		a.tools = true
		a.thinking = true
	default:
		a.spec, _ = tbl.BackendFor(types.RouteDefault)
		a.decision.Model = tbl.ResolveHint(req.ModelHint, types.RouteDefault)
	}
	a.decision.BackendID = a.spec.ID
	return a
}

func (r *Router) fallbackPlan(tbl *policy.Table, req types.GenerationRequest, primary attempt) attempt {
	spec, _ := tbl.BackendFor(types.RouteFallback)
	d := primary.decision
	d.Route = types.RouteFallback
	d.BackendID = spec.ID
	d.Model = tbl.ResolveHint(req.ModelHint, types.RouteFallback)
	return attempt{
		decision: d,
		spec:     spec,
		mode:     prompt.ModeTools,
		tools:    true,
	}
}

// Generate answers one request. It never fails: the worst outcome is the
// apology with Degraded set.
func (r *Router) Generate(ctx context.Context, req types.GenerationRequest) *types.GenerationResult {
	start := time.Now()
	caller := ctx
	ctx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
	defer cancel()

	audit := logging.AuditFrom(ctx)
	tbl := r.policies.Current()
	primary := r.plan(tbl, req)
	audit.RouteDecided(string(primary.decision.Route), primary.decision.BackendID, primary.decision.Model, tbl.Version)
	logging.Routing("Route %s -> %s (%s) policy=%s", primary.decision.Route, primary.decision.BackendID, primary.decision.Model, tbl.Version)

	resp, sources, err := r.call(ctx, req, primary)
	used := primary
	if err != nil {
		logging.RoutingWarn("Backend %s failed on route %s: %v", primary.decision.BackendID, primary.decision.Route, err)
		switch {
		case primary.decision.Route == types.RouteTools:
			// the tools backend is the fallback; nothing left to try
		case caller.Err() != nil || ctx.Err() != nil:
			logging.RoutingWarn("Skipping fallback, request context done: %v", context.Cause(ctx))
		default:
			used = r.fallbackPlan(tbl, req, primary)
			audit.Fallback(primary.decision.BackendID, used.decision.BackendID, err)
			resp, sources, err = r.call(ctx, req, used)
			if err != nil {
				logging.RoutingWarn("Fallback backend %s failed: %v", used.decision.BackendID, err)
			}
		}
	}

	result := &types.GenerationResult{
		BackendID:     used.decision.BackendID,
		Model:         used.decision.Model,
		Route:         used.decision.Route,
		Fallback:      used.decision.Route == types.RouteFallback,
		PolicyVersion: tbl.Version,
	}
	if err != nil {
		audit.Degraded(string(used.decision.Route), err)
		postprocess.Finalize(Apology, "", nil).Apply(result)
		result.Degraded = true
		logging.Routing("Request degraded after %v", time.Since(start))
		return result
	}

	if resp.Model != "" {
		result.Model = resp.Model
	}
	postprocess.Finalize(resp.Text, resp.Thinking, sources).Apply(result)
	logging.RoutingDebug("Request served by %s in %v related=%d sources=%d",
		result.BackendID, time.Since(start), len(result.RelatedQueries), len(result.Sources))
	return result
}

// call runs one attempt under the backend budget. It returns the response and
// the URLs recorded by tools during the call.
func (r *Router) call(ctx context.Context, req types.GenerationRequest, a attempt) (*perception.Response, []string, error) {
	b, err := r.backend(ctx, a.spec)
	if err != nil {
		return nil, nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.config.BackendTimeout)
	defer cancel()
	callCtx, sources := tools.WithSources(callCtx)

	preq := &perception.Request{
		Model:    a.decision.Model,
		Messages: r.composer.Compose(req.ConversationHistory, req.UserInput, a.mode),
		Thinking: a.thinking,
	}
	if a.tools && r.config.Tools != nil && b.Capabilities().Tools {
		preq.Tools = r.config.Tools
	}

	type outcome struct {
		resp *perception.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := b.Generate(callCtx, preq)
		done <- outcome{resp, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, nil, out.err
		}
		if out.resp == nil {
			return nil, nil, fmt.Errorf("%s: %w", b.ID(), perception.ErrEmptyResponse)
		}
		return out.resp, sources.URLs(), nil
	case <-callCtx.Done():
		return nil, nil, fmt.Errorf("backend %s: %w", b.ID(), callCtx.Err())
	}
}

// AnalyzeContext asks the default backend for a short summary of the
// conversation so far.
func (r *Router) AnalyzeContext(ctx context.Context, history, input string) (string, error) {
	tbl := r.policies.Current()
	spec, ok := tbl.BackendFor(types.RouteDefault)
	if !ok {
		return "", fmt.Errorf("default route: %w", ErrBackendUnavailable)
	}
	b, err := r.backend(ctx, spec)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.BackendTimeout)
	defer cancel()
	resp, err := b.Generate(ctx, &perception.Request{
		Model:    spec.Model,
		Messages: prompt.ContextSummaryPrompt(history, input),
	})
	if err != nil {
		return "", fmt.Errorf("analyze context: %w", err)
	}
	return resp.Text, nil
}

// backend returns the client for spec, building it through the factory when
// a reloaded policy introduced it.
func (r *Router) backend(ctx context.Context, spec policy.BackendSpec) (perception.Backend, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("unbound route: %w", ErrBackendUnavailable)
	}
	r.mu.RLock()
	b, ok := r.backends[spec.ID]
	r.mu.RUnlock()
	if ok {
		return b, nil
	}
	if r.config.Factory == nil {
		return nil, fmt.Errorf("%s: %w", spec.ID, ErrBackendUnavailable)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.backends[spec.ID]; ok {
		return b, nil
	}
	b, err := r.config.Factory(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", spec.ID, ErrBackendUnavailable, err)
	}
	r.backends[spec.ID] = b
	logging.Routing("Built backend %s for policy %s", spec.ID, r.policies.Current().Version)
	return b, nil
}

// classifierFor returns the classifier compiled from tbl, rebuilding it after
// a policy reload.
func (r *Router) classifierFor(tbl *policy.Table) *intent.Classifier {
	r.mu.RLock()
	c, same := r.classifier, r.classified == tbl
	r.mu.RUnlock()
	if same && c != nil {
		return c
	}

	c, err := intent.NewClassifier(tbl)
	if err != nil {
		// Tables are validated on load, so this only happens for hand-built ones.
		logging.RoutingWarn("Policy %s has unusable patterns, using built-in classifier: %v", tbl.Version, err)
		c, _ = intent.NewClassifier(policy.Default())
	}
	r.mu.Lock()
	r.classifier, r.classified = c, tbl
	r.mu.Unlock()
	return c
}
