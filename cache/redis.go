package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZaguanLabs/nmtflow"
)

const (
	defaultKeyPrefix = "nmtflow:"
	defaultOpTimeout = 2 * time.Second
	scanCount        = 500
)

// RedisCache is a Redis-backed translation cache shared between processes.
// Keys are prefix + scope + ":" + sha256(normalized text). Redis enforces
// no capacity here; use maxmemory with an LRU policy on the server.
type RedisCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	timeout   time.Duration
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// RedisConfig holds configuration for the Redis cache.
type RedisConfig struct {
	URL       string        // Redis connection URL (e.g., "redis://localhost:6379/0")
	TTL       time.Duration // Entry lifetime, 0 for none
	KeyPrefix string        // Prefix for all keys (default: "nmtflow:")
	Timeout   time.Duration // Per-operation timeout (default: 2s)
	Logger    *slog.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, &nmtflow.CacheError{Message: "invalid redis url", Cause: err}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &nmtflow.CacheError{Message: "redis ping failed", Cause: err}
	}

	return NewRedisCacheFromClient(client, cfg), nil
}

// NewRedisCacheFromClient creates a RedisCache from an existing client.
// cfg.URL is ignored.
func NewRedisCacheFromClient(client *redis.Client, cfg RedisConfig) *RedisCache {
	c := &RedisCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
	if c.keyPrefix == "" {
		c.keyPrefix = defaultKeyPrefix
	}
	if c.ttl < 0 {
		c.ttl = 0
	}
	if c.timeout <= 0 {
		c.timeout = defaultOpTimeout
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

func (c *RedisCache) key(direction, text string) string {
	return c.keyPrefix + direction + ":" + nmtflow.HashText(text)
}

// Get returns the cached translation. Backend errors count as misses.
func (c *RedisCache) Get(direction, text string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	val, err := c.client.Get(ctx, c.key(direction, text)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", "direction", direction, "error", err)
		}
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return val, true
}

// Put stores a translation. Failures are logged and otherwise ignored.
func (c *RedisCache) Put(direction, text, translation string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.client.Set(ctx, c.key(direction, text), translation, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", "direction", direction, "error", err)
	}
}

// Clear deletes every key under the prefix and resets the counters.
func (c *RedisCache) Clear() int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*c.timeout)
	defer cancel()

	removed := 0
	err := c.scan(ctx, func(keys []string) error {
		n, err := c.client.Del(ctx, keys...).Result()
		removed += int(n)
		return err
	})
	if err != nil {
		c.logger.Warn("redis clear incomplete", "removed", removed, "error", err)
	}

	c.hits.Store(0)
	c.misses.Store(0)
	return removed
}

// Stats counts keys under the prefix. Capacity is reported as 0.
func (c *RedisCache) Stats() nmtflow.CacheStats {
	ctx, cancel := context.WithTimeout(context.Background(), 10*c.timeout)
	defer cancel()

	size := 0
	if err := c.scan(ctx, func(keys []string) error {
		size += len(keys)
		return nil
	}); err != nil {
		c.logger.Warn("redis stats incomplete", "error", err)
	}

	hits, misses := c.hits.Load(), c.misses.Load()
	return nmtflow.CacheStats{
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}
}

// scan walks the prefix with SCAN, handing each non-empty page to fn.
func (c *RedisCache) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.keyPrefix+"*", scanCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping tests the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ TranslationCache = (*RedisCache)(nil)
