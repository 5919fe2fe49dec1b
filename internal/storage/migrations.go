package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a schema migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				timestamp INTEGER NOT NULL,
				event_type TEXT NOT NULL,
				service_name TEXT NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				metadata_json TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_events_service_ts ON events(service_name, timestamp);
			CREATE INDEX IF NOT EXISTS idx_events_type_ts ON events(event_type, timestamp);

			CREATE TABLE IF NOT EXISTS issues (
				id TEXT PRIMARY KEY,
				service_name TEXT NOT NULL,
				fingerprint TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				first_seen INTEGER NOT NULL,
				last_seen INTEGER NOT NULL,
				count INTEGER NOT NULL,
				severity TEXT NOT NULL,
				related_event_ids_json TEXT NOT NULL,
				suspected_cause_event_id TEXT,
				status TEXT NOT NULL,
				resolved_at INTEGER,
				resolved_by_event_id TEXT,
				regression_count INTEGER NOT NULL DEFAULT 0,
				unique_routes INTEGER NOT NULL DEFAULT 0,
				unique_users INTEGER,
				error_rate REAL NOT NULL DEFAULT 0,
				priority_score INTEGER NOT NULL DEFAULT 0,
				priority_reason TEXT,
				UNIQUE(service_name, fingerprint)
			);
			CREATE INDEX IF NOT EXISTS idx_issues_service_last_seen ON issues(service_name, last_seen);
			CREATE INDEX IF NOT EXISTS idx_issues_service_status_priority ON issues(service_name, status, priority_score);
		`,
	},
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			migration.Version, migration.Name, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
