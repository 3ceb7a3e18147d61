// Package storage persists feeds, items and settings in PostgreSQL or SQLite.
package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config holds database connection configuration.
type Config struct {
	Driver string
	DSN    string
}

// SQLiteDSN builds a DSN for a database file with WAL, a busy timeout and
// foreign keys enabled.
func SQLiteDSN(path string) string {
	return path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_time_format=sqlite"
}

// DB is the store handle shared by every store and the transaction manager.
//
// It allows a single writer at a time: every write goes through writeMu and
// a transaction holds it until commit or rollback. SQLite is additionally
// limited to one open connection.
type DB struct {
	db      *sqlx.DB
	driver  string
	writeMu sync.Mutex
}

func Open(ctx context.Context, cfg Config) (*DB, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	return &DB{db: db, driver: cfg.Driver}, nil
}

func (d *DB) Driver() string {
	return d.driver
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate applies the embedded migrations for the configured driver.
func (d *DB) Migrate(ctx context.Context, logger *slog.Logger) error {
	var (
		instance database.Driver
		err      error
	)
	switch d.driver {
	case DriverPostgres:
		instance, err = postgres.WithInstance(d.db.DB, &postgres.Config{})
	case DriverSQLite:
		instance, err = sqlite.WithInstance(d.db.DB, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+d.driver)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.driver, instance)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.WarnContext(ctx, "failed to read migration version", "error", err)
		return nil
	}

	if errors.Is(upErr, migrate.ErrNoChange) {
		logger.InfoContext(ctx, "no migrations to apply", "driver", d.driver, "version", version)
	} else {
		logger.InfoContext(ctx, "database migrated", "driver", d.driver, "version", version, "dirty", dirty)
	}
	return nil
}

// executor returns the transaction bound to ctx, or the pool.
func (d *DB) executor(ctx context.Context) sqlx.ExtContext {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return d.db
}

// write runs fn under the write lock. Inside a transaction the lock is
// already held.
func (d *DB) write(ctx context.Context, fn func(ext sqlx.ExtContext) error) error {
	if tx := txFromContext(ctx); tx != nil {
		return fn(tx)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	return fn(d.db)
}

func (d *DB) rebind(query string) string {
	return d.db.Rebind(query)
}
