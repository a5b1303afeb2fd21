// Package cache is a thin Redis-backed cache for upstream API
// responses. It degrades to a no-op when Redis is not configured or
// unreachable, so a cache outage never takes down reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/adops-console/internal/pkg/logger"
)

// ErrMiss is returned when a key is absent or the cache is disabled.
var ErrMiss = errors.New("cache miss")

// Cache wraps a Redis client with JSON serialization.
type Cache struct {
	client  *redis.Client
	enabled bool
}

// New creates a cache around client. A nil client yields a disabled
// cache whose reads always miss and writes are dropped.
func New(client *redis.Client) *Cache {
	return &Cache{client: client, enabled: client != nil}
}

// Connect dials Redis at addr and returns a working cache, or a
// disabled one if the server cannot be reached.
func Connect(ctx context.Context, addr, password string, db int) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, caching disabled", "addr", addr, "error", err.Error())
		client.Close()
		return &Cache{enabled: false}
	}
	return &Cache{client: client, enabled: true}
}

// Enabled reports whether the cache has a live backend.
func (c *Cache) Enabled() bool { return c.enabled }

// GetJSON reads key into dest. Returns ErrMiss when absent or disabled.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if !c.enabled {
		return ErrMiss
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		logger.Warn("cache read failed", "key", key, "error", err.Error())
		return ErrMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decoding cached value for %s: %w", key, err)
	}
	return nil
}

// SetJSON stores value under key with a TTL. Failures are logged and
// dropped; the caller already has the value.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !c.enabled {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		logger.Warn("cache encode failed", "key", key, "error", err.Error())
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.Warn("cache write failed", "key", key, "error", err.Error())
	}
}

// Delete removes keys, ignoring errors.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if !c.enabled || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("cache delete failed", "error", err.Error())
	}
}

// Client exposes the underlying Redis client for components that need
// raw access (distributed locks). Nil when disabled.
func (c *Cache) Client() *redis.Client {
	if !c.enabled {
		return nil
	}
	return c.client
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
