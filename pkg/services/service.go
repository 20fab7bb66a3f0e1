// Package services holds the business rules of the portal API between the
// HTTP handlers and the repositories.
package services

import (
	"github.com/civisight/portal/pkg/observability"
	"github.com/pkg/errors"
)

// Service errors
var (
	ErrForbidden  = errors.New("forbidden")
	ErrEmailTaken = errors.New("email already registered")
)

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return "validation error: " + e.Field + " - " + e.Message
}

// ServiceConfig provides the observability shared by all services
type ServiceConfig struct {
	Logger  observability.Logger
	Metrics observability.MetricsClient
	Tracer  observability.StartSpanFunc
}

// BaseService provides common functionality for all services
type BaseService struct {
	config ServiceConfig
}

// NewBaseService fills unset observability with no-op implementations.
func NewBaseService(config ServiceConfig) BaseService {
	if config.Logger == nil {
		config.Logger = observability.NewNoopLogger()
	}
	if config.Metrics == nil {
		config.Metrics = observability.NewNoOpMetricsClient()
	}
	if config.Tracer == nil {
		config.Tracer = observability.NoopStartSpan
	}
	return BaseService{config: config}
}
