package cachemanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/metrics"
)

const DefaultKeyPrefix = "regd:"

// flushBatch is the SCAN count used while flushing a prefix.
const flushBatch = 500

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// RedisCacheManager implements CacheManager on a shared Redis server.
// Values are stored as JSON under prefix+name+":"+key.
type RedisCacheManager[K ~string, V any] struct {
	name    string
	prefix  string
	client  redis.UniversalClient
	metrics *metrics.Metrics
}

var _ CacheManager[string, int] = (*RedisCacheManager[string, int])(nil)

// NewRedisCacheManager creates a cache named name in client. An empty
// prefix uses DefaultKeyPrefix.
func NewRedisCacheManager[K ~string, V any](client redis.UniversalClient, prefix, name string, m *metrics.Metrics) *RedisCacheManager[K, V] {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCacheManager[K, V]{
		name:    name,
		prefix:  prefix + name + ":",
		client:  client,
		metrics: m,
	}
}

func (c *RedisCacheManager[K, V]) key(k K) string {
	return c.prefix + string(k)
}

func (c *RedisCacheManager[K, V]) decode(key K, raw string) (V, bool) {
	var v V
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.ErrorErr(log.CatCache, "failed to decode cached value", err, "cache", c.name, "key", key)
		return v, false
	}
	return v, true
}

func (c *RedisCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zero V

	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.ErrorErr(log.CatCache, "redis get failed", err, "cache", c.name, "key", key)
		}
		c.metrics.CacheMiss(c.name)
		return zero, false
	}

	v, ok := c.decode(key, raw)
	if !ok {
		c.metrics.CacheMiss(c.name)
		return zero, false
	}
	c.metrics.CacheHit(c.name)
	return v, true
}

func (c *RedisCacheManager[K, V]) GetMultiple(ctx context.Context, keys []K) (map[K]V, bool) {
	if len(keys) == 0 {
		return nil, false
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	raws, err := c.client.MGet(ctx, full...).Result()
	if err != nil {
		log.ErrorErr(log.CatCache, "redis mget failed", err, "cache", c.name)
		return nil, false
	}

	values := make(map[K]V, len(keys))
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			c.metrics.CacheMiss(c.name)
			continue
		}
		if v, ok := c.decode(keys[i], s); ok {
			c.metrics.CacheHit(c.name)
			values[keys[i]] = v
		}
	}
	if len(values) == 0 {
		return nil, false
	}
	return values, true
}

// GetWithRefresh uses GETEX so the read and the expiry reset are atomic.
func (c *RedisCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	var zero V

	raw, err := c.client.GetEx(ctx, c.key(key), ttl).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.ErrorErr(log.CatCache, "redis getex failed", err, "cache", c.name, "key", key)
		}
		c.metrics.CacheMiss(c.name)
		return zero, false
	}

	v, ok := c.decode(key, raw)
	if !ok {
		c.metrics.CacheMiss(c.name)
		return zero, false
	}
	c.metrics.CacheHit(c.name)
	return v, true
}

// Set is best effort: failures are logged and the entry is simply absent.
func (c *RedisCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		log.ErrorErr(log.CatCache, "failed to encode cache value", err, "cache", c.name, "key", key)
		return
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		log.ErrorErr(log.CatCache, "redis set failed", err, "cache", c.name, "key", key)
	}
}

func (c *RedisCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// Flush deletes every key under this cache's prefix. Other caches sharing
// the server are untouched.
func (c *RedisCacheManager[K, V]) Flush(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", flushBatch).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to flush cache keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
