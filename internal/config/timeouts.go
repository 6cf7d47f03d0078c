package config

import (
	"fmt"
	"time"
)

// TimeoutConfig centralizes the budgets for outbound calls.
//
// The shortest timeout in a chain wins: a backend call runs under
// min(Backend, remaining Request budget), and each tool call made by a backend
// runs under Tool. A backend timeout counts as a failure and triggers the
// router's single fallback.
type TimeoutConfig struct {
	// Request bounds one whole generation, fallback included.
	Request string `yaml:"request"`

	// Backend bounds a single chat-completion call, tool rounds included.
	Backend string `yaml:"backend"`

	// Tool bounds one tool invocation (search, image, video, temp mail).
	Tool string `yaml:"tool"`

	// HTTPClient is the transport-level ceiling for every outbound client.
	HTTPClient string `yaml:"http_client"`
}

// DefaultTimeouts returns the default budgets.
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		Request:    "120s",
		Backend:    "55s",
		Tool:       "15s",
		HTTPClient: "60s",
	}
}

// RequestTimeout returns the whole-request budget.
func (t TimeoutConfig) RequestTimeout() time.Duration {
	return parseDuration(t.Request, 120*time.Second)
}

// BackendTimeout returns the per-backend-call budget.
func (t TimeoutConfig) BackendTimeout() time.Duration {
	return parseDuration(t.Backend, 55*time.Second)
}

// ToolTimeout returns the per-tool-call budget.
func (t TimeoutConfig) ToolTimeout() time.Duration {
	return parseDuration(t.Tool, 15*time.Second)
}

// HTTPClientTimeout returns the transport ceiling.
func (t TimeoutConfig) HTTPClientTimeout() time.Duration {
	return parseDuration(t.HTTPClient, 60*time.Second)
}

// Validate rejects unparsable or non-positive durations.
func (t TimeoutConfig) Validate() error {
	fields := map[string]string{
		"timeouts.request":     t.Request,
		"timeouts.backend":     t.Backend,
		"timeouts.tool":        t.Tool,
		"timeouts.http_client": t.HTTPClient,
	}
	for name, raw := range fields {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}
	return nil
}

// ServerReadTimeout returns the HTTP server read timeout.
func (c *Config) ServerReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

// ServerWriteTimeout returns the HTTP server write timeout.
func (c *Config) ServerWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 120*time.Second)
}

// ServerShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ServerShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// CacheTTL returns the tool cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, 10*time.Minute)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
