package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/metrics"
)

const DefaultExpiration = 15 * time.Minute
const DefaultCleanupInterval = 30 * time.Minute

// NewInMemoryCacheManager creates a process-local cache. name labels log
// lines and metrics; m may be nil.
func NewInMemoryCacheManager[K ~string, V any](name string, defaultExpiration, cleanupInterval time.Duration, m *metrics.Metrics) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		name:    name,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
		metrics: m,
	}
}

// InMemoryCacheManager implements CacheManager with go-cache.
type InMemoryCacheManager[K ~string, V any] struct {
	name    string
	cache   *gocache.Cache
	metrics *metrics.Metrics
}

var _ CacheManager[string, int] = (*InMemoryCacheManager[string, int])(nil)

// Get retrieves an item from the cache by its key
func (c *InMemoryCacheManager[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zeroValue V

	value, found := c.cache.Get(string(key))
	if !found {
		c.metrics.CacheMiss(c.name)
		return zeroValue, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value", "cache", c.name, "key", key)
		c.metrics.CacheMiss(c.name)
		return zeroValue, false
	}

	c.metrics.CacheHit(c.name)
	log.Debug(log.CatCache, "cache hit", "cache", c.name, "key", key)
	return v, true
}

// GetMultiple returns the cached subset of keys. It reports false when
// none of them were cached.
func (c *InMemoryCacheManager[K, V]) GetMultiple(ctx context.Context, keys []K) (map[K]V, bool) {
	if len(keys) == 0 {
		return nil, false
	}

	values := make(map[K]V, len(keys))
	var missing []K
	for _, key := range keys {
		v, ok := c.Get(ctx, key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		values[key] = v
	}

	if len(values) == 0 {
		return nil, false
	}
	if len(missing) > 0 {
		log.Debug(log.CatCache, "partial cache miss", "cache", c.name, "missing", missing)
	}
	return values, true
}

// GetWithRefresh retrieves an item and puts it back with a fresh ttl.
func (c *InMemoryCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	value, found := c.Get(ctx, key)
	if !found {
		return value, found
	}

	c.Set(ctx, key, value, ttl)
	return value, found
}

// Set stores value under key for ttl.
func (c *InMemoryCacheManager[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	c.cache.Set(string(key), value, ttl)
}

// Delete removes keys.
func (c *InMemoryCacheManager[K, V]) Delete(_ context.Context, keys ...K) error {
	for _, key := range keys {
		c.cache.Delete(string(key))
	}
	return nil
}

// Flush removes every entry.
func (c *InMemoryCacheManager[K, V]) Flush(_ context.Context) error {
	c.cache.Flush()
	return nil
}

// Len returns the number of entries, expired ones included until cleanup.
func (c *InMemoryCacheManager[K, V]) Len() int {
	return c.cache.ItemCount()
}
