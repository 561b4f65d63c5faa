// Package store persists the booking collections in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"carevisit/internal/model"
)

var (
	ErrConcurrentModification = model.ErrConcurrentModification
	ErrDateTaken              = model.ErrDateTaken
)

// DB wraps the sqlite connection pools. Writes go through the embedded
// pool; snapshot reads use reader.
type DB struct {
	*sql.DB
	reader *sql.DB
	path   string
	logger *zerolog.Logger
}

// Open opens the database at path and creates tables if they don't exist.
func Open(path string, logger *zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Immediate transactions serialize check-then-insert writers.
	db, err := openPool(path, "_journal_mode=WAL&_synchronous=NORMAL&_txlock=immediate&_foreign_keys=on", 10)
	if err != nil {
		return nil, err
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	// WAL readers see the last commit without waiting on the write lock.
	instance.reader, err = openPool(path, "_txlock=deferred&_query_only=true", 10)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func openPool(path, params string, maxOpen int) (*sql.DB, error) {
	dsn := path + "?_busy_timeout=5000&" + params
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS facilities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS residents (
			id TEXT PRIMARY KEY,
			facility_id TEXT NOT NULL,
			name TEXT NOT NULL,
			room TEXT NOT NULL DEFAULT '',
			kana TEXT NOT NULL DEFAULT '',
			menus TEXT NOT NULL DEFAULT '[]',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			is_selected BOOLEAN NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_residents_facility ON residents(facility_id)`,

		// One hold per date across all facilities.
		`CREATE TABLE IF NOT EXISTS keep_dates (
			date TEXT PRIMARY KEY,
			facility_id TEXT NOT NULL,
			origin TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_keep_dates_facility ON keep_dates(facility_id)`,

		// Dates a facility gave up; the rule engine must not hold them again.
		`CREATE TABLE IF NOT EXISTS released_keeps (
			facility_id TEXT NOT NULL,
			date TEXT NOT NULL,
			released_at DATETIME NOT NULL,
			PRIMARY KEY (facility_id, date)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			facility_id TEXT NOT NULL,
			date TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'confirmed',
			members TEXT NOT NULL DEFAULT '[]',
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		// One booking per date across all facilities.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_facility ON bookings(facility_id, date)`,

		`CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			facility_id TEXT NOT NULL,
			room TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			kana TEXT NOT NULL DEFAULT '',
			menu TEXT NOT NULL DEFAULT '',
			price INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_facility_date ON history(facility_id, date)`,

		`CREATE TABLE IF NOT EXISTS ng_dates (
			date TEXT PRIMARY KEY,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS finalized_months (
			facility_id TEXT NOT NULL,
			month TEXT NOT NULL,
			finalized_at DATETIME NOT NULL,
			PRIMARY KEY (facility_id, month)
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	if db.reader != nil {
		_ = db.reader.Close()
	}
	return db.DB.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func rollback(tx *sql.Tx) { _ = tx.Rollback() }

// withTx runs fn in a transaction and commits when it returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
