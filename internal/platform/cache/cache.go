// Package cache is a JSON read-through cache on Redis. Redis failures are
// logged and treated as misses so callers always fall back to the source.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/healthstore/healthstore/internal/platform/telemetry"
)

// Cache stores JSON values under a key prefix.
type Cache struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// New returns a Cache. A nil client disables caching.
func New(client redis.UniversalClient, prefix string, ttl time.Duration, logger zerolog.Logger, metrics *telemetry.Metrics) *Cache {
	return &Cache{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		logger:  logger.With().Str("component", "cache").Logger(),
		metrics: metrics,
	}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return client, nil
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

// Get decodes the cached value into dst and reports whether it was found.
func (c *Cache) Get(ctx context.Context, name, key string, dst any) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		c.metrics.CacheLookup(name, false)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry undecodable")
		c.metrics.CacheLookup(name, false)
		return false
	}
	c.metrics.CacheLookup(name, true)
	return true
}

// Set stores v with the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, v any) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil || len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("cache delete failed")
	}
}

// GetOrLoad returns the cached value for key or calls load and caches its
// result.
func GetOrLoad[T any](ctx context.Context, c *Cache, name, key string, load func(context.Context) (T, error)) (T, error) {
	var v T
	if c.Get(ctx, name, key, &v) {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(ctx, key, v)
	return v, nil
}
