package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLDB is the database interface used by all stores.
type SQLDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Compile-time check that *sql.DB satisfies SQLDB.
var _ SQLDB = (*sql.DB)(nil)

// InitDB initializes the database schema.
// PRE: db is a valid database connection
// POST: All tables are created, WAL mode enabled
func InitDB(db *sql.DB) error {
	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	// Enable foreign key enforcement
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS branch (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		segment TEXT NOT NULL,
		leader_name TEXT NOT NULL,
		leader_email TEXT NOT NULL,
		director_name TEXT NOT NULL DEFAULT '',
		director_email TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS branch_cap (
		id TEXT PRIMARY KEY,
		branch TEXT NOT NULL,
		product TEXT NOT NULL,
		ceiling_bp INTEGER NOT NULL,
		UNIQUE (branch, product)
	);

	CREATE TABLE IF NOT EXISTS advisor (
		id TEXT PRIMARY KEY,
		initials TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL,
		UNIQUE (name, branch)
	);

	CREATE TABLE IF NOT EXISTS advisor_percentage (
		advisor_id TEXT NOT NULL,
		product TEXT NOT NULL,
		value_bp INTEGER NOT NULL,
		PRIMARY KEY (advisor_id, product),
		FOREIGN KEY (advisor_id) REFERENCES advisor(id)
	);

	CREATE TABLE IF NOT EXISTS change_request (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		requester TEXT NOT NULL,
		requester_email TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL,
		advisor TEXT NOT NULL,
		product TEXT NOT NULL,
		value_before_bp INTEGER NOT NULL,
		value_after_bp INTEGER NOT NULL,
		direction TEXT NOT NULL,
		validation_required INTEGER NOT NULL,
		approval_state TEXT NOT NULL,
		reviewer_comment TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_change_request_triple
		ON change_request (branch, advisor, product);

	CREATE TABLE IF NOT EXISTS otp_session (
		requester TEXT PRIMARY KEY,
		requester_email TEXT NOT NULL,
		branch TEXT NOT NULL,
		code TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outbox (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 5,
		last_attempted_at TEXT,
		created_at TEXT NOT NULL,
		message_id TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
