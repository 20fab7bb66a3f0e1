// Package health runs the readiness checks behind /health/ready.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/civisight/portal/pkg/observability"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check result
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// HealthCheck is one dependency probe.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// Pinger is satisfied by the database and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker manages and executes health checks
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	results map[string]*Check

	metrics observability.MetricsClient
	logger  observability.Logger
	timeout time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(logger observability.Logger, metrics observability.MetricsClient) *HealthChecker {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	return &HealthChecker{
		checks:  make(map[string]HealthCheck),
		results: make(map[string]*Check),
		metrics: metrics,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// RegisterCheck registers a new health check under its name.
func (h *HealthChecker) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[check.Name()] = check
	h.logger.Info("Registered health check", map[string]interface{}{"check": check.Name()})
}

// RunChecks executes all registered checks concurrently.
func (h *HealthChecker) RunChecks(ctx context.Context) map[string]*Check {
	h.mu.RLock()
	checks := make([]HealthCheck, 0, len(h.checks))
	for _, c := range h.checks {
		checks = append(checks, c)
	}
	h.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]*Check, len(checks))
	)
	for _, check := range checks {
		wg.Add(1)
		go func(c HealthCheck) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := c.Check(checkCtx)
			result := &Check{
				Name:        c.Name(),
				Status:      StatusHealthy,
				LastChecked: time.Now(),
				Duration:    time.Since(start),
			}
			if err != nil {
				result.Status = StatusUnhealthy
				result.Message = err.Error()
				h.logger.Warn("Health check failed", map[string]interface{}{"check": c.Name(), "error": err.Error()})
			}
			h.recordMetrics(result)

			mu.Lock()
			results[result.Name] = result
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	h.mu.Lock()
	h.results = results
	h.mu.Unlock()
	return results
}

// IsHealthy reports whether every check in results passed.
func IsHealthy(results map[string]*Check) bool {
	for _, check := range results {
		if check.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// GetResults returns the latest health check results
func (h *HealthChecker) GetResults() map[string]*Check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	results := make(map[string]*Check, len(h.results))
	for k, v := range h.results {
		results[k] = v
	}
	return results
}

func (h *HealthChecker) recordMetrics(check *Check) {
	statusValue := 0.0
	if check.Status == StatusHealthy {
		statusValue = 1.0
	}
	labels := map[string]string{"component": check.Name}
	h.metrics.RecordGauge("health_check_status", statusValue, labels)
	h.metrics.RecordHistogram("health_check_duration_seconds", check.Duration.Seconds(), labels)
}

// PingCheck wraps a Pinger.
type PingCheck struct {
	name string
	p    Pinger
}

// NewPingCheck creates a check that pings p.
func NewPingCheck(name string, p Pinger) *PingCheck {
	return &PingCheck{name: name, p: p}
}

func (c *PingCheck) Name() string { return c.name }

func (c *PingCheck) Check(ctx context.Context) error {
	if err := c.p.Ping(ctx); err != nil {
		return errors.Wrapf(err, "%s ping failed", c.name)
	}
	return nil
}

// FuncCheck adapts a function into a HealthCheck.
type FuncCheck struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncCheck creates a check that calls fn.
func NewFuncCheck(name string, fn func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, fn: fn}
}

func (c *FuncCheck) Name() string { return c.name }

func (c *FuncCheck) Check(ctx context.Context) error { return c.fn(ctx) }
