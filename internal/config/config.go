package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all lhihi configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP surface
	Server ServerConfig `yaml:"server"`

	// Backends
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Ollama     OllamaConfig     `yaml:"ollama"`

	// Tools
	Search   SearchConfig   `yaml:"search"`
	Image    ImageConfig    `yaml:"image"`
	Video    VideoConfig    `yaml:"video"`
	TempMail TempMailConfig `yaml:"temp_mail"`
	Cache    CacheConfig    `yaml:"cache"`

	// Persistence
	Store StoreConfig `yaml:"store"`

	// Routing policy table
	Policy PolicyConfig `yaml:"policy"`

	// Outbound call budgets
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// OpenRouterConfig configures the OpenAI-compatible chat backend.
type OpenRouterConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	SiteURL           string  `yaml:"site_url"`
	SiteName          string  `yaml:"site_name"`
	Temperature       float32 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxToolRounds     int     `yaml:"max_tool_rounds"`
}

// GeminiConfig configures the Google GenAI backend.
type GeminiConfig struct {
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	MaxToolRounds   int     `yaml:"max_tool_rounds"`
	ThinkingBudget  int32   `yaml:"thinking_budget"`
}

// AnthropicConfig configures the optional Anthropic backend.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

// OllamaConfig configures the optional local Ollama backend.
type OllamaConfig struct {
	Host string `yaml:"host"`
}

// SearchConfig configures the web_search tool.
type SearchConfig struct {
	Provider   string `yaml:"provider"` // google, duckduckgo
	APIKey     string `yaml:"api_key"`
	EngineID   string `yaml:"engine_id"`
	Endpoint   string `yaml:"endpoint"`
	NumResults int    `yaml:"num_results"`
}

// ImageConfig configures the generate_image tool.
type ImageConfig struct {
	Provider      string `yaml:"provider"` // pollinations, openai
	BaseURL       string `yaml:"base_url"` // empty uses the provider default
	DefaultWidth  int    `yaml:"default_width"`
	DefaultHeight int    `yaml:"default_height"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
}

// VideoConfig configures the search_youtube tool.
type VideoConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
}

// TempMailConfig configures the create_temp_mail tool.
type TempMailConfig struct {
	BaseURL string `yaml:"base_url"`
}

// CacheConfig configures the tool result cache.
type CacheConfig struct {
	Backend  string `yaml:"backend"` // memory, redis, none
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
	Size     int    `yaml:"size"`
}

// StoreConfig configures conversation persistence.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres
	DSN    string `yaml:"dsn"`
}

// PolicyConfig points at an optional policy table override.
type PolicyConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// DefaultConfig returns the default configuration.
// Secrets are never defaulted; they come from the file or the environment.
func DefaultConfig() *Config {
	return &Config{
		Name:    "lhihi",
		Version: "1.0.0",

		Server: ServerConfig{
			Addr:            ":5000",
			ReadTimeout:     "15s",
			WriteTimeout:    "120s",
			ShutdownTimeout: "10s",
		},

		OpenRouter: OpenRouterConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			SiteURL:           "https://localhost:5000",
			SiteName:          "Lhihi AI",
			Temperature:       0.7,
			MaxTokens:         2048,
			RequestsPerSecond: 5,
			MaxToolRounds:     4,
		},

		Gemini: GeminiConfig{
			Temperature:     0.7,
			MaxOutputTokens: 8192,
			MaxToolRounds:   4,
			ThinkingBudget:  4096,
		},

		Anthropic: AnthropicConfig{
			MaxTokens: 2048,
		},

		Ollama: OllamaConfig{
			Host: "http://localhost:11434",
		},

		Search: SearchConfig{
			Provider:   "google",
			NumResults: 5,
		},

		Image: ImageConfig{
			Provider:      "pollinations",
			DefaultWidth:  512,
			DefaultHeight: 512,
			Model:         "dall-e-3",
		},

		TempMail: TempMailConfig{
			BaseURL: "https://api.mail.tm",
		},

		Cache: CacheConfig{
			Backend: "memory",
			TTL:     "10m",
			Size:    512,
		},

		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "data/lhihi.db",
		},

		Timeouts: DefaultTimeouts(),

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file, then applies .env and
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			// defaults
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// .env is optional; real environment variables take precedence over it.
	_ = godotenv.Load()

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.OpenRouter.APIKey = key
	}
	if url := os.Getenv("SITE_URL"); url != "" {
		c.OpenRouter.SiteURL = url
	}

	// GOOGLE_API_KEY serves search, video and (as a last resort) Gemini.
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Search.APIKey = key
		c.Video.APIKey = key
		if c.Gemini.APIKey == "" {
			c.Gemini.APIKey = key
		}
	}
	if key := os.Getenv("GOOGLE_GENAI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if id := os.Getenv("SEARCH_ENGINE_ID"); id != "" {
		c.Search.EngineID = id
	}
	if key := os.Getenv("YOUTUBE_API_KEY"); key != "" {
		c.Video.APIKey = key
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Anthropic.APIKey = key
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Ollama.Host = host
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Image.APIKey = key
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		c.Cache.RedisURL = url
		c.Cache.Backend = "redis"
	}

	if driver := os.Getenv("LHIHI_DB_DRIVER"); driver != "" {
		c.Store.Driver = driver
	}
	if dsn := os.Getenv("LHIHI_DB_DSN"); dsn != "" {
		c.Store.DSN = dsn
	}
	if path := os.Getenv("LHIHI_POLICY"); path != "" {
		c.Policy.Path = path
	}
	if addr := os.Getenv("LHIHI_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("LHIHI_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

var (
	// ValidSearchProviders lists the web_search providers.
	ValidSearchProviders = []string{"google", "duckduckgo"}
	// ValidImageProviders lists the generate_image providers.
	ValidImageProviders = []string{"pollinations", "openai"}
	// ValidCacheBackends lists the tool cache backends.
	ValidCacheBackends = []string{"memory", "redis", "none"}
	// ValidStoreDrivers lists the conversation store drivers.
	ValidStoreDrivers = []string{"sqlite", "postgres"}
)

// Validate validates the configuration.
// Missing API keys are not an error here: the backend or tool that needs a key
// fails its own call with a clear message.
func (c *Config) Validate() error {
	if err := oneOf("search.provider", c.Search.Provider, ValidSearchProviders); err != nil {
		return err
	}
	if err := oneOf("image.provider", c.Image.Provider, ValidImageProviders); err != nil {
		return err
	}
	if err := oneOf("cache.backend", c.Cache.Backend, ValidCacheBackends); err != nil {
		return err
	}
	if err := oneOf("store.driver", c.Store.Driver, ValidStoreDrivers); err != nil {
		return err
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when cache.backend is redis")
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	if c.Image.DefaultWidth <= 0 || c.Image.DefaultHeight <= 0 {
		return fmt.Errorf("image default size must be positive, got %dx%d", c.Image.DefaultWidth, c.Image.DefaultHeight)
	}
	return c.Timeouts.Validate()
}

func oneOf(field, value string, valid []string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (valid: %s)", field, value, strings.Join(valid, ", "))
}
