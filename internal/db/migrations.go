package db

import (
	"gitlab.com/tozd/go/errors"
)

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Errorf("failed to create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return errors.Errorf("failed to get current version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001},
		{2, migration002},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return errors.Errorf("failed to run migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return errors.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return errors.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

const migration001 = `
-- Transfer history
CREATE TABLE transfer_runs (
    id INTEGER PRIMARY KEY,
    scheduled_job_id INTEGER,
    direction TEXT NOT NULL,
    source TEXT NOT NULL,
    destination TEXT NOT NULL,
    dry_run BOOLEAN DEFAULT 0,
    sudo BOOLEAN DEFAULT 0,
    background BOOLEAN DEFAULT 0,
    delete_after BOOLEAN DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running',
    exit_code INTEGER,
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    successes INTEGER DEFAULT 0,
    failures INTEGER DEFAULT 0,
    deleted INTEGER DEFAULT 0,
    kept INTEGER DEFAULT 0,
    bytes_freed INTEGER DEFAULT 0,
    log_path TEXT NOT NULL DEFAULT '',
    error_message TEXT
);

CREATE INDEX idx_transfer_runs_started_at ON transfer_runs(started_at);
CREATE INDEX idx_transfer_runs_scheduled_job_id ON transfer_runs(scheduled_job_id);

-- One row per path considered by a deletion pass
CREATE TABLE deletion_records (
    id INTEGER PRIMARY KEY,
    transfer_run_id INTEGER NOT NULL REFERENCES transfer_runs(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    kind TEXT NOT NULL,
    outcome TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    bytes INTEGER DEFAULT 0
);

CREATE INDEX idx_deletion_records_transfer_run_id ON deletion_records(transfer_run_id);

-- Unattended push jobs
CREATE TABLE scheduled_jobs (
    id INTEGER PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    source TEXT NOT NULL,
    destination TEXT NOT NULL,
    cron_expression TEXT NOT NULL,
    delete_after BOOLEAN DEFAULT 0,
    sudo BOOLEAN DEFAULT 0,
    enabled BOOLEAN DEFAULT 1,
    last_run_at DATETIME,
    next_run_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Remembered session values (key-value store)
CREATE TABLE settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const migration002 = `
-- Failure lines are kept verbatim for the history view
CREATE TABLE failure_lines (
    id INTEGER PRIMARY KEY,
    transfer_run_id INTEGER NOT NULL REFERENCES transfer_runs(id) ON DELETE CASCADE,
    line TEXT NOT NULL
);

CREATE INDEX idx_failure_lines_transfer_run_id ON failure_lines(transfer_run_id);
`
