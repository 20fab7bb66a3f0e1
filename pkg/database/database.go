package database

import (
	"context"
	"time"

	"github.com/civisight/portal/pkg/database/migration"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/resilience"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// Database represents the database access layer
type Database struct {
	db     *sqlx.DB
	config Config
	logger observability.Logger
}

// NewDatabase connects with exponential backoff so the server survives a
// database that is still starting. With AutoMigrate set, pending migrations
// are applied before it returns.
func NewDatabase(ctx context.Context, cfg Config, logger observability.Logger) (*Database, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.Driver == "" {
		cfg.Driver = "postgres"
	}
	dsn := cfg.GetDSN()
	logger.Info("Connecting to database", map[string]interface{}{"dsn": sanitizeDSN(dsn)})

	retry := resilience.DefaultRetryConfig()
	retry.MaxRetries = cfg.ConnectRetries
	retry.MaxInterval = 5 * time.Second

	db, err := resilience.RetryWithResult(ctx, retry, func() (*sqlx.DB, error) {
		db, err := sqlx.ConnectContext(ctx, cfg.Driver, dsn)
		if err != nil {
			logger.Warn("Database not reachable yet", map[string]interface{}{"error": err.Error()})
		}
		return db, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	database := &Database{db: db, config: cfg, logger: logger}

	if cfg.AutoMigrate {
		logger.Info("Running automatic database migrations", nil)
		m, err := migration.NewManager(db, migration.Config{}, logger)
		if err == nil {
			err = m.RunMigrations(ctx)
		}
		if err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "database migration failed")
		}
	}

	return database, nil
}

// NewDatabaseWithConnection wraps an existing connection, used by tests.
func NewDatabaseWithConnection(db *sqlx.DB, logger observability.Logger) *Database {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Database{db: db, logger: logger}
}

// Transaction executes fn within a database transaction. The transaction is
// rolled back when fn returns an error or panics.
func (d *Database) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) (err error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Error("Failed to rollback transaction", map[string]interface{}{
				"error":          rbErr.Error(),
				"original_error": err.Error(),
			})
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

// Ping checks the connection, used by the readiness probe.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// DB returns the underlying pool.
func (d *Database) DB() *sqlx.DB {
	return d.db
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}
