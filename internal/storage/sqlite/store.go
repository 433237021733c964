// Package sqlite implements the telemetry store on SQLite: identity
// resolution, transactional batch writes and the analytical queries.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.up.sql
var migrationSQL string

// Store is the SQLite-backed telemetry store.
type Store struct {
	db      *sql.DB
	verbose bool
}

// Config holds SQLite store configuration.
type Config struct {
	// DSN is the SQLite connection string (file path or file: URI).
	DSN string

	// Verbose enables store-operation logging.
	Verbose bool
}

// DefaultConfig returns the default store configuration.
func DefaultConfig(dsn string) Config {
	return Config{DSN: dsn}
}

// New opens the database, applies pragmas and runs migrations.
func New(cfg Config) (*Store, error) {
	// Connection parameters ride on the DSN so they apply to every
	// pooled connection, not just the one an Exec happens to land on.
	// foreign_keys drives the cascade/restrict semantics, busy_timeout
	// makes concurrent writers queue, and _txlock=immediate takes the
	// write lock at BEGIN so a deferred transaction never fails its
	// read-to-write upgrade with BUSY_SNAPSHOT.
	dsn := cfg.DSN
	if !strings.Contains(dsn, "_txlock=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_txlock=immediate" +
			"&_pragma=foreign_keys(1)" +
			"&_pragma=busy_timeout(5000)" +
			"&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL is persistent in the database file, set once here.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, verbose: cfg.Verbose}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// logf logs store operations when verbose logging is enabled.
func (s *Store) logf(format string, args ...any) {
	if s.verbose {
		log.Printf(format, args...)
	}
}

// Clear removes all stored telemetry and identity rows. Child tables
// are cleared before the tables they reference so the restrict FKs
// never fire.
func (s *Store) Clear(ctx context.Context) error {
	tables := []string{
		"span_events",
		"span_links",
		"spans",
		"gauge_data_points",
		"sum_data_points",
		"histogram_data_points",
		"exponential_histogram_data_points",
		"summary_data_points",
		"exemplars",
		"metrics",
		"log_records",
		"instrumentation_scopes",
		"resources",
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// encodeJSON encodes data as a JSON string for a TEXT column.
func encodeJSON(data any) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding JSON: %w", err)
	}
	return string(b), nil
}

// decodeJSON decodes a TEXT column JSON string into target.
func decodeJSON(data string, target any) error {
	if err := json.Unmarshal([]byte(data), target); err != nil {
		return fmt.Errorf("decoding JSON: %w", err)
	}
	return nil
}
