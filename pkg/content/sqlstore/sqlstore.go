// Package sqlstore implements content.Store and audit.Log on a SQL database
// through sqlx. PostgreSQL (lib/pq) and SQLite (go-sqlite3) are supported.
package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/policy"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Connection pool defaults for postgres.
const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 30 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store is the SQL-backed content store and refresh log.
type Store struct {
	db       *sqlx.DB
	policies *policy.Registry
}

// New wraps an open database. Expiry and timestamps come from policies.
func New(db *sqlx.DB, policies *policy.Registry) *Store {
	if policies == nil {
		policies = policy.NewRegistry(nil)
	}
	return &Store{db: db, policies: policies}
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, errors.NewConfigError("database", fmt.Sprintf("unsupported driver %q", driver), nil)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the content_items and refresh_logs tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	name := "schema/postgres.sql"
	if s.db.DriverName() == DriverSQLite {
		name = "schema/sqlite.sql"
	}
	ddl, err := schemaFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, string(ddl)); err != nil {
		return errors.WrapResource("create", "schema", "", err)
	}
	return nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() time.Time {
	return s.policies.Now().UTC()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
