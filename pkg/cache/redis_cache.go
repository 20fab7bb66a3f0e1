package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/civisight/portal/pkg/observability"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements the Cache interface for Redis. Values are stored as
// JSON.
type RedisCache struct {
	client  redis.UniversalClient
	config  RedisConfig
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewRedisCache connects to Redis and verifies the connection with a ping.
func NewRedisCache(ctx context.Context, cfg RedisConfig, logger observability.Logger, metrics observability.MetricsClient) (*RedisCache, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	logger.Info("Connected to redis", map[string]interface{}{"address": cfg.Address, "db": cfg.DB})
	return NewRedisCacheWithClient(client, cfg, logger, metrics), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client redis.UniversalClient, cfg RedisConfig, logger observability.Logger, metrics observability.MetricsClient) *RedisCache {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	return &RedisCache{client: client, config: cfg, logger: logger, metrics: metrics}
}

func (c *RedisCache) key(k string) string {
	return c.config.KeyPrefix + k
}

// Get retrieves a value from the cache
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	start := time.Now()
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		c.metrics.RecordCacheOperation("get", false, time.Since(start))
		return ErrNotFound
	}
	if err != nil {
		c.metrics.RecordCacheOperation("get", false, time.Since(start))
		return errors.Wrapf(err, "redis get %s", key)
	}
	c.metrics.RecordCacheOperation("get", true, time.Since(start))
	return json.Unmarshal(data, value)
}

// Set stores a value in the cache
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode cache value %s", key)
	}
	start := time.Now()
	err = c.client.Set(ctx, c.key(key), data, ttl).Err()
	c.metrics.RecordCacheOperation("set", err == nil, time.Since(start))
	if err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

// Delete removes values from the cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	return c.client.Del(ctx, prefixed...).Err()
}

// Exists checks if a key exists in the cache
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	return n > 0, err
}

// Flush removes every key carrying the configured prefix. Without a prefix
// the whole database is flushed.
func (c *RedisCache) Flush(ctx context.Context) error {
	if c.config.KeyPrefix == "" {
		return c.client.FlushDB(ctx).Err()
	}
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	return c.client.Del(ctx, batch...).Err()
}

// Ping checks the connection, used by the readiness probe.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the cache connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
