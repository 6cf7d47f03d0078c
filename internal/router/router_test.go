package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lhihi/internal/perception"
	"lhihi/internal/policy"
	"lhihi/internal/prompt"
	"lhihi/internal/tools"
	"lhihi/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	id   string
	caps perception.Capabilities
	fn   func(ctx context.Context, req *perception.Request) (*perception.Response, error)

	mu    sync.Mutex
	calls []*perception.Request
}

func (f *fakeBackend) ID() string                            { return f.id }
func (f *fakeBackend) Capabilities() perception.Capabilities { return f.caps }

func (f *fakeBackend) Generate(ctx context.Context, req *perception.Request) (*perception.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fn == nil {
		return &perception.Response{Text: f.id + " says hi", Model: req.Model}, nil
	}
	return f.fn(ctx, req)
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) lastCall() *perception.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func failing(msg string) func(context.Context, *perception.Request) (*perception.Response, error) {
	return func(context.Context, *perception.Request) (*perception.Response, error) {
		return nil, errors.New(msg)
	}
}

type fixture struct {
	router   *Router
	chat     *fakeBackend
	tools    *fakeBackend
	thinking *fakeBackend
	registry *tools.Registry
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		chat:     &fakeBackend{id: "openrouter-chat", caps: perception.Capabilities{Tools: true}},
		tools:    &fakeBackend{id: "gemini-tools", caps: perception.Capabilities{Tools: true}},
		thinking: &fakeBackend{id: "gemini-thinking", caps: perception.Capabilities{Tools: true, Thinking: true}},
		registry: tools.NewRegistry(),
	}
	f.registry.MustRegister(&tools.Tool{
		Name:        "web_search",
		Description: "search the web",
		Category:    tools.CategorySearch,
		Schema: tools.ToolSchema{
			Required:   []string{"query"},
			Properties: map[string]tools.Property{"query": {Type: "string", Description: "query"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			tools.RecordSources(ctx, "https://a.example", "https://b.example", "https://a.example", "https://c.example", "https://d.example")
			return "results", nil
		},
	})

	if cfg.Tools == nil {
		cfg.Tools = f.registry
	}
	if cfg.Composer == nil {
		cfg.Composer = prompt.NewComposer().WithNonce(func() string { return "nonce" })
	}
	f.router = New(policy.NewHolder(nil), map[string]perception.Backend{
		f.chat.id:     f.chat,
		f.tools.id:    f.tools,
		f.thinking.id: f.thinking,
	}, cfg)
	return f
}

func TestDecide(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name    string
		req     types.GenerationRequest
		route   types.Route
		backend string
		model   string
	}{
		{"plain chat", types.GenerationRequest{UserInput: "hello there"}, types.RouteDefault, "openrouter-chat", "openai/gpt-4o-mini-2024-07-18"},
		{"chat with hint", types.GenerationRequest{UserInput: "hello there", ModelHint: "openai/gpt-oss-20b:free"}, types.RouteDefault, "openrouter-chat", "openai/gpt-oss-20b:free"},
		{"image wins over reasoning", types.GenerationRequest{UserInput: "calculate and generate image of 2+2"}, types.RouteTools, "gemini-tools", "gemini-2.0-flash-exp"},
		{"tools with gemini hint", types.GenerationRequest{UserInput: "search the news", ModelHint: "googleai/gemini-1.5-pro"}, types.RouteTools, "gemini-tools", "gemini-1.5-pro"},
		{"reasoning", types.GenerationRequest{UserInput: "calculate 2+2 = 4"}, types.RouteReasoning, "gemini-thinking", "gemini-2.0-flash-thinking-exp"},
		{"reasoning with deepseek", types.GenerationRequest{UserInput: "solve x*2 = 10", ModelHint: "deepseek/deepseek-r1:free"}, types.RouteReasoning, "openrouter-chat", "deepseek/deepseek-r1:free"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := f.router.Decide(tt.req)
			assert.Equal(t, tt.route, d.Route)
			assert.Equal(t, tt.backend, d.BackendID)
			assert.Equal(t, tt.model, d.Model)
			assert.Equal(t, "2025.1", d.PolicyVersion)
		})
	}
}

func TestGenerateDefaultRoute(t *testing.T) {
	f := newFixture(t, Config{})
	f.chat.fn = func(_ context.Context, req *perception.Request) (*perception.Response, error) {
		return &perception.Response{
			Text:  "Hi! :::image[https://x/cat.png]:::\n\n1. What is a quantum computer?\n2. How do lasers work today?",
			Model: req.Model,
		}, nil
	}

	res := f.router.Generate(context.Background(), types.GenerationRequest{
		ConversationHistory: "user: hey",
		UserInput:           "hello there",
	})

	require.False(t, res.Degraded)
	assert.False(t, res.Fallback)
	assert.Equal(t, types.RouteDefault, res.Route)
	assert.Equal(t, "openrouter-chat", res.BackendID)
	assert.Equal(t, []string{"What is a quantum computer?", "How do lasers work today?"}, res.RelatedQueries)
	require.GreaterOrEqual(t, len(res.Segments), 2)
	assert.Equal(t, types.SegmentImage, res.Segments[1].Kind)

	call := f.chat.lastCall()
	require.NotNil(t, call)
	assert.Nil(t, call.Tools)
	assert.False(t, call.Thinking)
	require.Len(t, call.Messages, 3)
	assert.Equal(t, "user: hey", call.Messages[1].Content)
	assert.Equal(t, "hello there", call.Messages[2].Content)
	assert.NotContains(t, call.Messages[0].Content, "<planning_rules>")
	assert.Zero(t, f.tools.callCount())
}

func TestGenerateToolsRouteCollectsSources(t *testing.T) {
	f := newFixture(t, Config{})
	f.tools.fn = func(ctx context.Context, req *perception.Request) (*perception.Response, error) {
		require.NotNil(t, req.Tools)
		out := req.Tools.Invoke(ctx, "web_search", map[string]any{"query": "news"})
		return &perception.Response{Text: "Here is the news: " + out, Model: req.Model}, nil
	}

	res := f.router.Generate(context.Background(), types.GenerationRequest{UserInput: "latest news please"})

	require.False(t, res.Degraded)
	assert.Equal(t, types.RouteTools, res.Route)
	assert.Equal(t, "Here is the news: results", res.Response)
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, res.Sources)
	assert.Contains(t, f.tools.lastCall().Messages[0].Content, ":::generating_image[nonce]:::")
}

func TestGenerateReasoningRoute(t *testing.T) {
	f := newFixture(t, Config{})
	f.thinking.fn = func(_ context.Context, req *perception.Request) (*perception.Response, error) {
		return &perception.Response{Text: "4", Thinking: "2 plus 2", Model: req.Model}, nil
	}

	res := f.router.Generate(context.Background(), types.GenerationRequest{UserInput: "calculate 2+2 = 4"})
	require.False(t, res.Degraded)
	assert.Equal(t, "4", res.Response)
	assert.Equal(t, "2 plus 2", res.Thinking)

	call := f.thinking.lastCall()
	assert.True(t, call.Thinking)
	assert.NotNil(t, call.Tools)
	assert.Contains(t, call.Messages[0].Content, "<thinking_rules>")

	res = f.router.Generate(context.Background(), types.GenerationRequest{UserInput: "solve x*2 = 10", ModelHint: "deepseek/deepseek-r1:free"})
	require.False(t, res.Degraded)
	assert.Equal(t, "openrouter-chat", res.BackendID)
	assert.Equal(t, "deepseek/deepseek-r1:free", f.chat.lastCall().Model)
	assert.Equal(t, 1, f.thinking.callCount())
}

func TestGenerateFallsBackOnce(t *testing.T) {
	f := newFixture(t, Config{})
	f.chat.fn = failing("OpenRouter API error: 500 - boom")

	res := f.router.Generate(context.Background(), types.GenerationRequest{UserInput: "hello there", ModelHint: "googleai/gemini-1.5-flash"})

	require.False(t, res.Degraded)
	assert.True(t, res.Fallback)
	assert.Equal(t, types.RouteFallback, res.Route)
	assert.Equal(t, "gemini-tools says hi", res.Response)
	assert.Equal(t, 1, f.chat.callCount())
	assert.Equal(t, 1, f.tools.callCount())
	assert.Equal(t, "gemini-1.5-flash", f.tools.lastCall().Model)
	assert.NotNil(t, f.tools.lastCall().Tools)
}

func TestGenerateApologyWhenBothFail(t *testing.T) {
	f := newFixture(t, Config{})
	f.thinking.fn = failing("thinking down")
	f.tools.fn = failing("tools down")

	res := f.router.Generate(context.Background(), types.GenerationRequest{UserInput: "calculate 2+2 = 4"})

	assert.True(t, res.Degraded)
	assert.True(t, res.Fallback)
	assert.Equal(t, Apology, res.Response)
	assert.Empty(t, res.RelatedQueries)
	assert.Equal(t, 1, f.thinking.callCount())
	assert.Equal(t, 1, f.tools.callCount())
}

func TestGenerateToolsFailureHasNoFallback(t *testing.T) {
	f := newFixture(t, Config{})
	f.tools.fn = failing("tools down")

	res := f.router.Generate(context.Background(), types.GenerationRequest{UserInput: "generate image of a fox"})

	assert.True(t, res.Degraded)
	assert.False(t, res.Fallback)
	assert.Equal(t, Apology, res.Response)
	assert.Equal(t, 1, f.tools.callCount())
	assert.Zero(t, f.chat.callCount())
}

func TestGenerateBackendTimeoutTriggersFallback(t *testing.T) {
	f := newFixture(t, Config{BackendTimeout: 50 * time.Millisecond, RequestTimeout: 5 * time.Second})
	f.chat.fn = func(ctx context.Context, _ *perception.Request) (*perception.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	start := time.Now()
	res := f.router.Generate(context.Background(), types.GenerationRequest{UserInput: "hello there"})

	assert.Less(t, time.Since(start), 2*time.Second)
	require.False(t, res.Degraded)
	assert.True(t, res.Fallback)
	assert.Equal(t, 1, f.tools.callCount())
}

func TestGenerateSkipsFallbackWhenCallerCancelled(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	f.chat.fn = func(ctx context.Context, _ *perception.Request) (*perception.Response, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	res := f.router.Generate(ctx, types.GenerationRequest{UserInput: "hello there"})

	assert.True(t, res.Degraded)
	assert.Zero(t, f.tools.callCount())
}

func TestGenerateMissingBackendUsesFactory(t *testing.T) {
	f := newFixture(t, Config{})

	tbl := policy.Default()
	tbl.Version = "2026.1"
	tbl.Backends = append(tbl.Backends, policy.BackendSpec{ID: "openrouter-alt", Provider: policy.ProviderOpenRouter, Model: "alt/model"})
	tbl.Routes.Default = "openrouter-alt"
	require.NoError(t, f.router.policies.Set(tbl))

	// without a factory the missing backend fails and the fallback answers
	res := f.router.Generate(context.Background(), types.GenerationRequest{UserInput: "hello there"})
	assert.True(t, res.Fallback)
	assert.Equal(t, "2026.1", res.PolicyVersion)

	alt := &fakeBackend{id: "openrouter-alt"}
	var built int
	f.router.config.Factory = func(_ context.Context, spec policy.BackendSpec) (perception.Backend, error) {
		built++
		assert.Equal(t, "openrouter-alt", spec.ID)
		return alt, nil
	}
	for i := 0; i < 2; i++ {
		res = f.router.Generate(context.Background(), types.GenerationRequest{UserInput: "hello there"})
		assert.False(t, res.Fallback)
		assert.Equal(t, "openrouter-alt says hi", res.Response)
	}
	assert.Equal(t, 1, built)
}

func TestClassifierFollowsPolicyReload(t *testing.T) {
	f := newFixture(t, Config{})
	assert.False(t, f.router.Classify("paint a sunset").NeedsTools)

	tbl := policy.Default()
	tbl.Version = "2026.2"
	tbl.Keywords.Image = append(tbl.Keywords.Image, "paint")
	require.NoError(t, f.router.policies.Set(tbl))

	assert.True(t, f.router.Classify("paint a sunset").NeedsTools)
	assert.Equal(t, "2026.2", f.router.Policy().Version)
}

func TestAnalyzeContext(t *testing.T) {
	f := newFixture(t, Config{})
	f.chat.fn = func(_ context.Context, req *perception.Request) (*perception.Response, error) {
		require.Len(t, req.Messages, 2)
		assert.True(t, strings.Contains(req.Messages[1].Content, "Current Input: and now?"))
		return &perception.Response{Text: "User is planning a trip."}, nil
	}

	summary, err := f.router.AnalyzeContext(context.Background(), "user: trip to goa", "and now?")
	require.NoError(t, err)
	assert.Equal(t, "User is planning a trip.", summary)

	f.chat.fn = failing("down")
	_, err = f.router.AnalyzeContext(context.Background(), "", "x")
	assert.Error(t, err)
}

func TestGenerateConcurrent(t *testing.T) {
	f := newFixture(t, Config{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := "hello there"
			if i%2 == 0 {
				input = "latest news"
			}
			res := f.router.Generate(context.Background(), types.GenerationRequest{UserInput: input})
			assert.False(t, res.Degraded)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 16, f.chat.callCount()+f.tools.callCount())
}
