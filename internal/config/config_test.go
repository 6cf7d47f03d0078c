package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENROUTER_API_KEY", "SITE_URL", "GOOGLE_API_KEY", "GOOGLE_GENAI_API_KEY",
		"GEMINI_API_KEY", "SEARCH_ENGINE_ID", "YOUTUBE_API_KEY", "ANTHROPIC_API_KEY",
		"OLLAMA_HOST", "OPENAI_API_KEY", "REDIS_URL", "LHIHI_DB_DRIVER", "LHIHI_DB_DSN",
		"LHIHI_POLICY", "LHIHI_ADDR", "LHIHI_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "lhihi", cfg.Name)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouter.BaseURL)
	assert.Equal(t, "https://localhost:5000", cfg.OpenRouter.SiteURL)
	assert.Equal(t, "Lhihi AI", cfg.OpenRouter.SiteName)
	assert.InDelta(t, 0.7, cfg.OpenRouter.Temperature, 0.0001)
	assert.Equal(t, 2048, cfg.OpenRouter.MaxTokens)
	assert.Equal(t, 512, cfg.Image.DefaultWidth)
	assert.Equal(t, 512, cfg.Image.DefaultHeight)
	assert.Equal(t, 5, cfg.Search.NumResults)
	assert.Empty(t, cfg.OpenRouter.APIKey, "secrets must not have defaults")
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "lhihi.yaml")

	cfg := DefaultConfig()
	cfg.Search.Provider = "duckduckgo"
	cfg.Timeouts.Backend = "30s"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "duckduckgo", loaded.Search.Provider)
	assert.Equal(t, 30*time.Second, loaded.Timeouts.BackendTimeout())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Store, cfg.Store)
}

func TestLoad_MissingFileStillAppliesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "or-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "or-key", cfg.OpenRouter.APIKey)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad search provider", func(c *Config) { c.Search.Provider = "bing" }, "search.provider"},
		{"bad image provider", func(c *Config) { c.Image.Provider = "midjourney" }, "image.provider"},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"redis without url", func(c *Config) { c.Cache.Backend = "redis" }, "redis_url"},
		{"bad driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"empty dsn", func(c *Config) { c.Store.DSN = "" }, "store.dsn"},
		{"zero image size", func(c *Config) { c.Image.DefaultWidth = 0 }, "image default size"},
		{"bad timeout", func(c *Config) { c.Timeouts.Tool = "soon" }, "timeouts.tool"},
		{"negative timeout", func(c *Config) { c.Timeouts.Request = "-1s" }, "timeouts.request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTimeoutFallbacks(t *testing.T) {
	tc := TimeoutConfig{Request: "garbage", Backend: "", Tool: "0s"}

	assert.Equal(t, 120*time.Second, tc.RequestTimeout())
	assert.Equal(t, 55*time.Second, tc.BackendTimeout())
	assert.Equal(t, 15*time.Second, tc.ToolTimeout())
	assert.Equal(t, 60*time.Second, tc.HTTPClientTimeout())
}

func TestLoggingCategoryToggle(t *testing.T) {
	lc := LoggingConfig{Categories: map[string]bool{"tools": false}}

	assert.False(t, lc.IsCategoryEnabled("tools"))
	assert.True(t, lc.IsCategoryEnabled("routing"))
	assert.Equal(t, lc.Categories, lc.ToLogging().Categories)
}
