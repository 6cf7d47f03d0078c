// Package cache stores tool results keyed by tool name and normalized query.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"lhihi/internal/config"
	"lhihi/internal/logging"
)

// Cache is a string cache with a fixed TTL.
// Implementations treat backend failures as misses.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// Key builds a cache key from a tool name and its query. The query is
// lower-cased and whitespace-collapsed before hashing.
func Key(tool, query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	h := sha256.Sum256([]byte(normalized))
	return tool + ":" + hex.EncodeToString(h[:])
}

// New builds the cache selected by cfg. The "none" backend returns Noop.
func New(cfg *config.Config) (Cache, error) {
	ttl := cfg.CacheTTL()
	switch cfg.Cache.Backend {
	case "", "memory":
		return NewMemory(cfg.Cache.Size, ttl), nil
	case "redis":
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return NewRedis(redis.NewClient(opts), ttl), nil
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, bool) { return "", false }
func (Noop) Set(context.Context, string, string)        {}

// Redis stores entries in Redis with a per-key expiry.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, prefix: "lhihi:tool:"}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		logging.CacheDebug("redis get %s failed: %v", key, err)
		return "", false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key, value string) {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		logging.CacheDebug("redis set %s failed: %v", key, err)
	}
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
