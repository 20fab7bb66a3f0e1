// Package migration applies the embedded portal schema with golang-migrate.
package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/civisight/portal/pkg/observability"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed sql/*.sql
var migrationFS embed.FS

// Config holds the migration configuration
type Config struct {
	// Timeout for migration operations
	MigrationTimeout time.Duration
	// Steps limits how many migrations run; 0 means all.
	Steps int
}

// Manager handles database migrations
type Manager struct {
	db       *sqlx.DB
	config   Config
	logger   observability.Logger
	migrator *migrate.Migrate
}

// NewManager creates a new migration manager
func NewManager(db *sqlx.DB, config Config, logger observability.Logger) (*Manager, error) {
	if db == nil {
		return nil, errors.New("db connection cannot be nil")
	}
	if config.MigrationTimeout == 0 {
		config.MigrationTimeout = time.Minute
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Manager{db: db, config: config, logger: logger.WithPrefix("migration")}, nil
}

// Init builds the migrator from the embedded SQL files.
func (m *Manager) Init(ctx context.Context) error {
	driver, err := postgres.WithInstance(m.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}
	source, err := iofs.New(migrationFS, "sql")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	m.migrator = migrator
	return nil
}

// RunMigrations applies all pending migrations
func (m *Manager) RunMigrations(ctx context.Context) error {
	return m.run(ctx, func() error {
		if m.config.Steps > 0 {
			return m.migrator.Steps(m.config.Steps)
		}
		return m.migrator.Up()
	})
}

// Rollback reverts the given number of migrations.
func (m *Manager) Rollback(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return m.run(ctx, func() error { return m.migrator.Steps(-steps) })
}

// Version reports the applied schema version.
func (m *Manager) Version(ctx context.Context) (uint, bool, error) {
	if m.migrator == nil {
		if err := m.Init(ctx); err != nil {
			return 0, false, err
		}
	}
	v, dirty, err := m.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (m *Manager) run(ctx context.Context, step func() error) error {
	if m.migrator == nil {
		if err := m.Init(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.MigrationTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := step()
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("No migrations to run", nil)
			err = nil
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("migration error: %w", err)
		}
		m.logger.Info("Migrations applied", nil)
		return nil
	case <-ctx.Done():
		m.migrator.GracefulStop <- true
		return fmt.Errorf("migration timeout after %s", m.config.MigrationTimeout)
	}
}
