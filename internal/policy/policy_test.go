package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"lhihi/internal/types"
)

func TestDefaultTable(t *testing.T) {
	tbl := Default()

	assert.Equal(t, "2025.1", tbl.Version)
	assert.Contains(t, tbl.Keywords.Image, "generate image")
	assert.Contains(t, tbl.Keywords.TempMail, "temp mail")
	assert.Contains(t, tbl.Keywords.Reasoning, "probability")
	assert.Len(t, tbl.Keywords.Video, 11)

	b, ok := tbl.BackendFor(types.RouteDefault)
	require.True(t, ok)
	assert.Equal(t, ProviderOpenRouter, b.Provider)
	assert.Equal(t, "openai/gpt-4o-mini-2024-07-18", b.Model)

	b, ok = tbl.BackendFor(types.RouteReasoning)
	require.True(t, ok)
	assert.True(t, b.Thinking)

	b, ok = tbl.BackendFor(types.RouteFallback)
	require.True(t, ok)
	assert.True(t, b.Tools)
}

func TestResolveHint(t *testing.T) {
	tbl := Default()

	tests := []struct {
		name  string
		hint  string
		route types.Route
		want  string
	}{
		{"empty hint on default route", "", types.RouteDefault, "openai/gpt-4o-mini-2024-07-18"},
		{"unknown hint", "nope/nope", types.RouteDefault, "openai/gpt-4o-mini-2024-07-18"},
		{"deepseek on default", "deepseek/deepseek-r1:free", types.RouteDefault, "deepseek/deepseek-r1:free"},
		{"gpt-oss on default", "openai/gpt-oss-20b:free", types.RouteDefault, "openai/gpt-oss-20b:free"},
		{"gemini hint ignored on default route", "googleai/gemini-1.5-pro", types.RouteDefault, "openai/gpt-4o-mini-2024-07-18"},
		{"gemini hint on tools route", "googleai/gemini-1.5-pro", types.RouteTools, "gemini-1.5-pro"},
		{"gemini hint follows fallback", "googleai/gemini-1.5-flash", types.RouteFallback, "gemini-1.5-flash"},
		{"deepseek ignored on tools route", "deepseek/deepseek-r1:free", types.RouteTools, "gemini-2.0-flash-exp"},
		{"reasoning route default model", "", types.RouteReasoning, "gemini-2.0-flash-thinking-exp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tbl.ResolveHint(tt.hint, tt.route))
		})
	}
}

func TestReasoningOverride(t *testing.T) {
	tbl := Default()

	h, ok := tbl.ReasoningOverride("deepseek/deepseek-r1:free")
	require.True(t, ok)
	assert.Equal(t, types.RouteDefault, h.Route)

	_, ok = tbl.ReasoningOverride("openai/gpt-oss-20b:free")
	assert.False(t, ok)
	_, ok = tbl.ReasoningOverride("")
	assert.False(t, ok)
}

func TestParseNormalizesKeywords(t *testing.T) {
	tbl := Default()
	tbl.Version = "test"
	tbl.Keywords.Image = []string{"  Draw Me ", "", "PAINT"}

	data, err := yaml.Marshal(tbl)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"draw me", "paint"}, parsed.Keywords.Image)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Table)
		want   string
	}{
		{"missing version", func(tb *Table) { tb.Version = "" }, "version"},
		{"bad regex", func(tb *Table) { tb.Patterns.Contrast = "(unclosed" }, "contrast"},
		{"unknown provider", func(tb *Table) { tb.Backends[0].Provider = "mystery" }, "unknown provider"},
		{"duplicate backend", func(tb *Table) { tb.Backends = append(tb.Backends, tb.Backends[0]) }, "duplicate backend"},
		{"unbound route", func(tb *Table) { tb.Routes.Default = "" }, "not bound"},
		{"unknown route backend", func(tb *Table) { tb.Routes.Reasoning = "ghost" }, "unknown backend"},
		{"fallback without tools", func(tb *Table) { tb.Routes.Fallback = "openrouter-chat" }, "tool-capable"},
		{"tools on text-only provider", func(tb *Table) {
			tb.Backends = append(tb.Backends, BackendSpec{ID: "a", Provider: ProviderAnthropic, Model: "m", Tools: true})
		}, "cannot run tools"},
		{"thinking on openrouter", func(tb *Table) { tb.Backends[0].Thinking = true }, "thinking"},
		{"hint with bad route", func(tb *Table) { tb.Hints[0].Route = "sideways" }, "unknown route"},
		{"hint without model", func(tb *Table) { tb.Hints[0].Model = "" }, "id and model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := Default()
			tt.mutate(tbl)
			err := tbl.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: [\n"), 0644))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	good := writePolicy(t, dir, "policy.yaml", "2026.2")
	tbl, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, "2026.2", tbl.Version)
}

func TestHolderReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "policy.yaml", "2026.1")

	h := NewHolder(nil)
	assert.Equal(t, "2025.1", h.Current().Version)

	require.NoError(t, h.Reload(path))
	assert.Equal(t, "2026.1", h.Current().Version)

	require.NoError(t, os.WriteFile(path, []byte("version: \"\"\n"), 0644))
	require.Error(t, h.Reload(path))
	assert.Equal(t, "2026.1", h.Current().Version)
}

func TestHolderSetValidates(t *testing.T) {
	h := NewHolder(Default())

	broken := Default()
	broken.Routes.Tools = "nowhere"
	require.Error(t, h.Set(broken))
	require.Error(t, h.Set(nil))
	assert.Equal(t, "2025.1", h.Current().Version)

	next := Default()
	next.Version = "next"
	require.NoError(t, h.Set(next))
	assert.Equal(t, "next", h.Current().Version)
}

func TestHolderWatch(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "policy.yaml", "2026.1")

	h := NewHolder(nil)
	require.NoError(t, h.Reload(path))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx, path) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writePolicy(t, dir, "policy.yaml", "2026.3")

	assert.Eventually(t, func() bool {
		return h.Current().Version == "2026.3"
	}, 3*time.Second, 25*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func writePolicy(t *testing.T, dir, name, version string) string {
	t.Helper()
	data := strings.Replace(string(defaultPolicyYAML), `version: "2025.1"`, `version: "`+version+`"`, 1)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}
