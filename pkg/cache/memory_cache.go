package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/civisight/portal/pkg/observability"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is an in-process cache for single-node deployments and tests.
// The LRU applies one TTL to every entry, so per-call ttls only matter when
// they are shorter; entries carry their own deadline for that.
type MemoryCache struct {
	lru     *expirable.LRU[string, memoryEntry]
	ttl     time.Duration
	metrics observability.MetricsClient
	now     func() time.Time
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// NewMemoryCache creates a bounded LRU cache.
func NewMemoryCache(cfg RedisConfig, metrics observability.MetricsClient) *MemoryCache {
	size := cfg.LocalSize
	if size <= 0 {
		size = 1024
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	return &MemoryCache{
		lru:     expirable.NewLRU[string, memoryEntry](size, nil, ttl),
		ttl:     ttl,
		metrics: metrics,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string, value interface{}) error {
	start := time.Now()
	entry, ok := c.lru.Get(key)
	if ok && !entry.expires.IsZero() && !c.now().Before(entry.expires) {
		c.lru.Remove(key)
		ok = false
	}
	c.metrics.RecordCacheOperation("get", ok, time.Since(start))
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(entry.data, value)
}

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := memoryEntry{data: data}
	if ttl > 0 && ttl < c.ttl {
		entry.expires = c.now().Add(ttl)
	}
	c.lru.Add(key, entry)
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		c.lru.Remove(k)
	}
	return nil
}

func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	var raw json.RawMessage
	err := c.Get(ctx, key, &raw)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (c *MemoryCache) Flush(ctx context.Context) error {
	c.lru.Purge()
	return nil
}

func (c *MemoryCache) Close() error { return nil }
