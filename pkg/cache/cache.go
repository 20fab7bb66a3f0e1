// Package cache provides the read-through cache used for county task counts
// and user lookups.
package cache

import (
	"context"
	"time"

	"github.com/civisight/portal/pkg/observability"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("cache: key not found")

// Cache interface defines the operations for a caching system
type Cache interface {
	// Get decodes the cached value for key into value.
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Flush(ctx context.Context) error
	Close() error
}

// RedisConfig holds configuration for the cache backend
type RedisConfig struct {
	// Type is "redis" or "memory".
	Type         string        `mapstructure:"type"`
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	// DefaultTTL applies when Set is called with a zero ttl.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	// LocalSize bounds the memory cache.
	LocalSize int `mapstructure:"local_size"`
}

// NewCache creates a new cache client with the given configuration
func NewCache(ctx context.Context, config RedisConfig, logger observability.Logger, metrics observability.MetricsClient) (Cache, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	switch config.Type {
	case "", "redis":
		return NewRedisCache(ctx, config, logger, metrics)
	case "memory":
		return NewMemoryCache(config, metrics), nil
	default:
		return nil, errors.Errorf("unsupported cache type: %s", config.Type)
	}
}
