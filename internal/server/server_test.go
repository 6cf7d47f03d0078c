package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lhihi/internal/config"
	"lhihi/internal/perception"
	"lhihi/internal/policy"
	"lhihi/internal/prompt"
	"lhihi/internal/router"
	"lhihi/internal/session"
	"lhihi/internal/store"
	"lhihi/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubBackend struct {
	id   string
	text string
	err  error
}

func (s *stubBackend) ID() string                            { return s.id }
func (s *stubBackend) Capabilities() perception.Capabilities { return perception.Capabilities{Tools: true} }

func (s *stubBackend) Generate(_ context.Context, req *perception.Request) (*perception.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &perception.Response{Text: s.text, Model: req.Model}, nil
}

const greeting = "Hello! How can I help?\n\n1. What can you do for me today?\n2. Can you tell me a joke?"

type testEnv struct {
	handler http.Handler
	store   *store.Store
	chat    *stubBackend
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(context.Background(), config.StoreConfig{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "server.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	chat := &stubBackend{id: "openrouter-chat", text: greeting}
	backends := map[string]perception.Backend{
		"openrouter-chat": chat,
		"gemini-tools":    &stubBackend{id: "gemini-tools", text: "tool answer"},
		"gemini-thinking": &stubBackend{id: "gemini-thinking", text: "thought answer"},
	}
	cfg := router.DefaultConfig()
	cfg.Composer = prompt.NewComposer().WithNonce(func() string { return "nonce" })
	rt := router.New(policy.NewHolder(nil), backends, cfg)

	srv := New(config.DefaultConfig(), Deps{
		Router:   rt,
		Sessions: session.NewService(st, rt),
		Store:    st,
		Version:  "test",
	})
	return &testEnv{handler: srv.Handler(), store: st, chat: chat}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[healthResponse](t, w)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "2025.1", body.PolicyVersion)
	assert.Equal(t, "test", body.Version)
	assert.NotEmpty(t, w.Header().Get(TraceHeader))
}

func TestTraceHeaderPropagates(t *testing.T) {
	env := newEnv(t)

	r := httptest.NewRequest(http.MethodGet, "/api/conversations/missing", nil)
	r.Header.Set(TraceHeader, "trace-123")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "trace-123", w.Header().Get(TraceHeader))
	body := decode[ErrorBody](t, w)
	assert.Equal(t, codeNotFound, body.Code)
	assert.Equal(t, "trace-123", body.TraceID)
}

func TestModels(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		PolicyVersion string        `json:"policyVersion"`
		Models        []policy.Hint `json:"models"`
	}](t, w)
	assert.Equal(t, "2025.1", body.PolicyVersion)
	require.NotEmpty(t, body.Models)

	ids := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, "deepseek/deepseek-r1:free")
}

func TestGenerate(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/generate", `{"conversationHistory":"","userInput":"hi there"}`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[types.GenerationResult](t, w)
	assert.Equal(t, greeting, res.Response)
	assert.Equal(t, []string{"What can you do for me today?", "Can you tell me a joke?"}, res.RelatedQueries)
	assert.Equal(t, types.RouteDefault, res.Route)
	assert.False(t, res.Degraded)
}

func TestGenerateDegradedStillOK(t *testing.T) {
	env := newEnv(t)
	env.chat.err = errors.New("boom")

	// Chat fails, the fallback answers.
	w := env.do(t, http.MethodPost, "/api/generate", `{"userInput":"hi there"}`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[types.GenerationResult](t, w)
	assert.True(t, res.Fallback)
	assert.Equal(t, "tool answer", res.Response)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty input", `{"userInput":"   "}`},
		{"malformed json", `{"userInput":`},
		{"unknown field", `{"userInput":"hi","temperature":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, codeBadRequest, decode[ErrorBody](t, w).Code)
		})
	}
}

func TestGenerateBodyLimit(t *testing.T) {
	env := newEnv(t)

	big := `{"userInput":"` + strings.Repeat("a", maxBodyBytes+1) + `"}`
	w := env.do(t, http.MethodPost, "/api/generate", big)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassify(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/classify", `{"userInput":"search for flights to Lagos"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["needsTools"])
	decision := body["decision"].(map[string]any)
	assert.Equal(t, "tools", decision["route"])
	assert.Equal(t, "gemini-tools", decision["backendId"])
}

func TestAnalyzeContext(t *testing.T) {
	env := newEnv(t)
	env.chat.text = "User is planning a trip."

	w := env.do(t, http.MethodPost, "/api/analyze-context",
		`{"conversationHistory":"user: I want to visit Accra","currentInput":"what should I pack?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User is planning a trip.", decode[analyzeResponse](t, w).ContextSummary)

	env.chat.err = errors.New("down")
	w = env.do(t, http.MethodPost, "/api/analyze-context", `{"currentInput":"x"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, codeUpstream, decode[ErrorBody](t, w).Code)
}

func TestConversationLifecycle(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/conversations", "")
	require.Equal(t, http.StatusCreated, w.Code)
	conv := decode[types.Conversation](t, w)
	assert.Equal(t, store.DefaultTitle, conv.Title)

	w = env.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", `{"content":"Tell me about volcanoes please"}`)
	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[session.Reply](t, w)
	require.NotNil(t, reply.Assistant)
	assert.Equal(t, greeting, reply.Assistant.Text)
	assert.Len(t, reply.Assistant.RelatedQueries, 2)
	assert.Equal(t, 2, reply.Assistant.Seq)

	w = env.do(t, http.MethodGet, "/api/conversations/"+conv.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		types.Conversation
		Turns []types.ConversationTurn `json:"turns"`
	}](t, w)
	assert.Equal(t, "Tell me about volcanoes please", got.Title)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, types.RoleUser, got.Turns[0].Role)

	env.chat.text = "Second try"
	w = env.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/regenerate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Second try", decode[session.Reply](t, w).Assistant.Text)

	turns, err := env.store.ListTurns(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)

	w = env.do(t, http.MethodPut, "/api/conversations/"+conv.ID+"/turns/"+turns[0].ID, `{"content":"Tell me about glaciers"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Tell me about glaciers", decode[session.Reply](t, w).User.Text)

	w = env.do(t, http.MethodPut, "/api/conversations/"+conv.ID+"/turns/"+turns[1].ID, `{"content":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code, "truncated turn is gone")

	turns, err = env.store.ListTurns(context.Background(), conv.ID)
	require.NoError(t, err)
	w = env.do(t, http.MethodPut, "/api/conversations/"+conv.ID+"/turns/"+turns[1].ID, `{"content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "assistant turns cannot be edited")

	w = env.do(t, http.MethodGet, "/api/conversations", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Conversations []types.Conversation `json:"conversations"`
	}](t, w)
	require.Len(t, list.Conversations, 1)

	w = env.do(t, http.MethodDelete, "/api/conversations/"+conv.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, "/api/conversations/"+conv.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversationErrors(t *testing.T) {
	env := newEnv(t)

	conv, err := env.store.CreateConversation(context.Background(), "Custom")
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"empty message", http.MethodPost, "/api/conversations/" + conv.ID + "/messages", `{"content":"  "}`, http.StatusBadRequest, codeBadRequest},
		{"unknown conversation", http.MethodPost, "/api/conversations/nope/messages", `{"content":"hi"}`, http.StatusNotFound, codeNotFound},
		{"nothing to regenerate", http.MethodPost, "/api/conversations/" + conv.ID + "/regenerate", `{}`, http.StatusConflict, codeConflict},
		{"bad limit", http.MethodGet, "/api/conversations?limit=-1", "", http.StatusBadRequest, codeBadRequest},
		{"unknown route", http.MethodGet, "/api/nothing", "", http.StatusNotFound, codeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[ErrorBody](t, w).Code)
		})
	}
}

func TestCreateConversationWithTitle(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/conversations", `{"title":"Trip planning"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Trip planning", decode[types.Conversation](t, w).Title)
}

func TestServeListenerShutsDown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ShutdownTimeout = "2s"
	rt := router.New(policy.NewHolder(nil), map[string]perception.Backend{
		"openrouter-chat": &stubBackend{id: "openrouter-chat", text: "ok"},
	}, router.DefaultConfig())
	srv := New(cfg, Deps{Router: rt})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Post("http://"+ln.Addr().String()+"/api/generate", "application/json", bytes.NewBufferString(`{"userInput":"hello"}`))
	require.NoError(t, err)
	var res types.GenerationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	resp.Body.Close()
	assert.Equal(t, "ok", res.Response)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	http.DefaultClient.CloseIdleConnections()
}
