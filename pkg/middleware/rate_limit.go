// Package middleware holds the gin middleware shared by the portal API.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/observability"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`

	GlobalRPS   int `mapstructure:"global_rps"`
	GlobalBurst int `mapstructure:"global_burst"`

	// Per-user limits. Anonymous requests are keyed by client IP.
	UserRPS   int `mapstructure:"user_rps"`
	UserBurst int `mapstructure:"user_burst"`

	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:         true,
		GlobalRPS:       500,
		GlobalBurst:     1000,
		UserRPS:         20,
		UserBurst:       40,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          1 * time.Hour,
	}
}

// RateLimiter provides rate limiting functionality
type RateLimiter struct {
	limiters map[string]*rateLimiterEntry
	mu       sync.Mutex
	config   RateLimitConfig
	logger   observability.Logger
	metrics  observability.MetricsClient
	now      func() time.Time
}

type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter creates a rate limiter. Call Run to evict idle entries.
func NewRateLimiter(config RateLimitConfig, logger observability.Logger, metrics observability.MetricsClient) *RateLimiter {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	return &RateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		config:   config,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Run evicts idle per-user limiters until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	interval := rl.config.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// GlobalLimit applies one limiter to every request.
func (rl *RateLimiter) GlobalLimit() gin.HandlerFunc {
	if !rl.config.Enabled {
		return passThrough
	}
	limiter := rate.NewLimiter(rate.Limit(rl.config.GlobalRPS), rl.config.GlobalBurst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			rl.reject(c, "global", rl.config.GlobalRPS)
			return
		}
		c.Next()
	}
}

// UserLimit applies a limiter per authenticated user, or per client IP when
// the request carries no principal.
func (rl *RateLimiter) UserLimit() gin.HandlerFunc {
	if !rl.config.Enabled {
		return passThrough
	}
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if p, ok := auth.GetPrincipal(c); ok {
			key = "user:" + p.ID
		}

		limiter := rl.getLimiter(key, rl.config.UserRPS, rl.config.UserBurst)
		if !limiter.Allow() {
			rl.reject(c, "user", rl.config.UserRPS)
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.UserRPS))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int(limiter.Tokens())))
		c.Next()
	}
}

func (rl *RateLimiter) reject(c *gin.Context, limitType string, rps int) {
	rl.metrics.IncrementCounterWithLabels("rate_limit_hits", 1.0, map[string]string{
		"type": limitType,
		"path": c.FullPath(),
	})
	c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rps))
	c.Header("X-RateLimit-Remaining", "0")
	c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", rl.now().Add(time.Second).Unix()))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       limitType + " rate limit exceeded",
		"retry_after": 1,
	})
}

func (rl *RateLimiter) getLimiter(key string, rps, burst int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[key]; ok {
		entry.lastAccess = rl.now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	rl.limiters[key] = &rateLimiterEntry{limiter: limiter, lastAccess: rl.now()}
	return limiter
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > rl.config.MaxAge {
			delete(rl.limiters, key)
		}
	}
	rl.logger.Debug("Rate limiter cleanup completed", map[string]interface{}{
		"remaining_limiters": len(rl.limiters),
	})
}

// Size reports the number of tracked per-user limiters.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func passThrough(c *gin.Context) { c.Next() }
