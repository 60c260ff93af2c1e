package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		key          TEXT PRIMARY KEY,
		state        TEXT NOT NULL,
		next_fire_at TEXT,
		record       TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id          TEXT PRIMARY KEY,
		title       TEXT    NOT NULL,
		notes       TEXT    NOT NULL DEFAULT '',
		due_at      TEXT,
		reminder_at TEXT,
		completed   INTEGER NOT NULL DEFAULT 0,
		updated_at  TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_at)`,

	`CREATE TABLE IF NOT EXISTS quotes (
		id     TEXT PRIMARY KEY,
		text   TEXT    NOT NULL,
		author TEXT    NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE IF NOT EXISTS habits (
		id     TEXT PRIMARY KEY,
		name   TEXT    NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		streak INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS widget_state (
		family        TEXT PRIMARY KEY,
		last_shown_id TEXT NOT NULL DEFAULT '',
		updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return tx.Commit()
}
