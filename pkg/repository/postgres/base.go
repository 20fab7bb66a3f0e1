// Package postgres implements the repository interfaces on Postgres via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/civisight/portal/pkg/cache"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// BaseRepository carries what every table repository needs.
type BaseRepository struct {
	db      *sqlx.DB
	cache   cache.Cache
	logger  observability.Logger
	tracer  observability.StartSpanFunc
	metrics observability.MetricsClient

	queryTimeout time.Duration
	cacheTTL     time.Duration
}

// NewBaseRepository fills in no-op collaborators for nil arguments. A nil
// cache disables caching.
func NewBaseRepository(db *sqlx.DB, c cache.Cache, logger observability.Logger, tracer observability.StartSpanFunc, metrics observability.MetricsClient) *BaseRepository {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if tracer == nil {
		tracer = observability.NoopStartSpan
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	return &BaseRepository{
		db:           db,
		cache:        c,
		logger:       logger,
		tracer:       tracer,
		metrics:      metrics,
		queryTimeout: 30 * time.Second,
		cacheTTL:     5 * time.Minute,
	}
}

// begin starts a span and a query deadline. The returned func must be
// called with the operation's error.
func (r *BaseRepository) begin(ctx context.Context, table, op string) (context.Context, func(error)) {
	ctx, span := r.tracer(ctx, "repository."+table+"."+op)
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	start := time.Now()
	return ctx, func(err error) {
		cancel()
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			span.RecordError(err)
		}
		span.End()
		r.metrics.RecordDatabaseOperation(op, table, err, time.Since(start))
	}
}

func (r *BaseRepository) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if r.cache == nil {
		return false
	}
	if err := r.cache.Get(ctx, key, dest); err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			r.logger.Warn("Cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
		return false
	}
	return true
}

func (r *BaseRepository) cacheSet(ctx context.Context, key string, value interface{}) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, key, value, r.cacheTTL); err != nil {
		r.logger.Warn("Cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (r *BaseRepository) cacheDelete(ctx context.Context, keys ...string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.logger.Warn("Cache delete failed", map[string]interface{}{"keys": keys, "error": err.Error()})
	}
}

// translateError maps driver errors onto the repository sentinels.
func translateError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return errors.Wrapf(repository.ErrDuplicate, format, args...)
		case "23503", "23514": // foreign_key_violation, check_violation
			return errors.Wrap(repository.ErrValidation, fmt.Sprintf(format, args...)+": "+pqErr.Message)
		}
	}
	return errors.Wrapf(err, format, args...)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
