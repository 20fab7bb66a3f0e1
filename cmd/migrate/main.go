package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/civisight/portal/pkg/database/migration"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/repository/postgres"
	"github.com/civisight/portal/pkg/seed"
)

var (
	// Command flags
	upFlag      = flag.Bool("up", false, "Run migrations up")
	downFlag    = flag.Bool("down", false, "Roll back migrations (one step unless -steps is set)")
	versionFlag = flag.Bool("version", false, "Show current migration version")
	seedFlag    = flag.Bool("seed", false, "Load counties and obligations after migrating")

	// Global flags
	dsn      = flag.String("dsn", os.Getenv("DATABASE_URL"), "Database connection string")
	seedFile = flag.String("seed-file", "", "YAML seed file (defaults to the built-in counties)")
	steps    = flag.Int("steps", 0, "Number of migrations to apply (0 = all)")
	timeout  = flag.Duration("timeout", 1*time.Minute, "Migration timeout")
)

func main() {
	flag.Parse()

	if !*upFlag && !*downFlag && !*versionFlag && !*seedFlag {
		flag.Usage()
		os.Exit(2)
	}
	if *dsn == "" {
		fmt.Println("Error: -dsn or DATABASE_URL is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Received termination signal, canceling operations...")
		cancel()
	}()

	db, err := sqlx.ConnectContext(ctx, "postgres", *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := observability.NewLogger("migrate")
	manager, err := migration.NewManager(db, migration.Config{
		MigrationTimeout: *timeout,
		Steps:            *steps,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create migration manager: %v", err)
	}
	if err := manager.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize migration manager: %v", err)
	}

	if *versionFlag {
		version, dirty, err := manager.Version(ctx)
		if err != nil {
			log.Fatalf("Failed to get migration version: %v", err)
		}
		fmt.Printf("Current migration version: %d (dirty: %t)\n", version, dirty)
		return
	}

	if *downFlag {
		n := *steps
		if n <= 0 {
			n = 1
		}
		fmt.Printf("Rolling back %d migration(s)...\n", n)
		if err := manager.Rollback(ctx, n); err != nil {
			log.Fatalf("Failed to roll back migration: %v", err)
		}
		fmt.Println("Rollback completed")
		return
	}

	if *upFlag {
		fmt.Println("Running migrations...")
		startTime := time.Now()
		if err := manager.RunMigrations(ctx); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Printf("Migrations completed in %s\n", time.Since(startTime))
	}

	if *seedFlag {
		data, err := loadSeed(*seedFile)
		if err != nil {
			log.Fatalf("Failed to read seed data: %v", err)
		}
		tracer := observability.NoopStartSpan
		metrics := observability.NewNoOpMetricsClient()
		seeder := seed.NewSeeder(
			postgres.NewCountyRepository(db, logger, tracer, metrics),
			postgres.NewObligationRepository(db, logger, tracer, metrics),
			logger,
		)
		if err := seeder.Apply(ctx, data); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		fmt.Printf("Seeded %d counties\n", len(data.Counties))
	}
}

// loadSeed reads path, or the embedded default when path is empty. "-"
// reads standard input.
func loadSeed(path string) (*seed.Data, error) {
	var r io.Reader
	switch path {
	case "":
		return seed.Default()
	case "-":
		r = os.Stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return seed.Parse(r)
}
