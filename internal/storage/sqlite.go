package storage

import (
	"context"
	"database/sql"
	"fmt"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/faultlinehq/faultline/internal/utils"
)

// SQLiteStorage bundles the SQLite-backed ledger and repository over one
// database file.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	events *sqliteEventLedger
	issues *sqliteIssueRepo
}

// NewSQLiteStorage creates SQLite storage for the given database path. Call
// Open before use.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initialises the database connection and applies pragmas.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return utils.NewAppError("storage.Open", "open database", err)
	}

	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return utils.NewAppError("storage.Open", "ping database", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db
	s.events = &sqliteEventLedger{db: db}
	s.issues = &sqliteIssueRepo{db: db}
	return nil
}

// Migrate applies pending schema migrations.
func (s *SQLiteStorage) Migrate() error {
	if err := runMigrations(s.db); err != nil {
		return utils.NewAppError("storage.Migrate", "apply migrations", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies database connectivity, used by health checks.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not open")
	}
	return s.db.PingContext(ctx)
}

// Events returns the event ledger.
func (s *SQLiteStorage) Events() EventLedger { return s.events }

// Issues returns the issue repository.
func (s *SQLiteStorage) Issues() IssueRepository { return s.issues }
