package db

import (
	"database/sql"
	"time"

	"gitlab.com/tozd/go/errors"
)

// TransferRun queries

const transferRunColumns = `id, scheduled_job_id, direction, source, destination, dry_run, sudo, background,
	delete_after, status, exit_code, started_at, completed_at, successes, failures, deleted, kept,
	bytes_freed, log_path, error_message`

// CreateTransferRun records the start of a transfer
func (db *DB) CreateTransferRun(run *TransferRun) (*TransferRun, error) {
	result, err := db.Exec(`
		INSERT INTO transfer_runs (scheduled_job_id, direction, source, destination, dry_run, sudo,
			background, delete_after, status, started_at, log_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ScheduledJobID, run.Direction, run.Source, run.Destination, run.DryRun, run.Sudo,
		run.Background, run.DeleteAfter, TransferRunStatusRunning, time.Now().UTC(), run.LogPath,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetTransferRun(id)
}

// GetTransferRun retrieves a transfer run by ID
func (db *DB) GetTransferRun(id int64) (*TransferRun, error) {
	row := db.QueryRow(`SELECT `+transferRunColumns+` FROM transfer_runs WHERE id = ?`, id)
	return scanTransferRun(row)
}

// ListTransferRuns returns transfer runs, newest first, with pagination
func (db *DB) ListTransferRuns(limit, offset int) ([]*TransferRun, error) {
	rows, err := db.Query(`SELECT `+transferRunColumns+`
		FROM transfer_runs ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*TransferRun
	for rows.Next() {
		r, err := scanTransferRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLastRunForJob returns the most recent transfer run for a scheduled job
func (db *DB) GetLastRunForJob(jobID int64) (*TransferRun, error) {
	row := db.QueryRow(`SELECT `+transferRunColumns+`
		FROM transfer_runs WHERE scheduled_job_id = ? ORDER BY started_at DESC, id DESC LIMIT 1`, jobID)
	return scanTransferRun(row)
}

// CompleteTransferRun records how a transfer finished
func (db *DB) CompleteTransferRun(id int64, res TransferRunResult) error {
	_, err := db.Exec(`
		UPDATE transfer_runs SET
			status = ?, exit_code = ?, completed_at = ?, successes = ?, failures = ?,
			deleted = ?, kept = ?, bytes_freed = ?, error_message = ?
		WHERE id = ?`,
		res.Status, res.ExitCode, time.Now().UTC(), res.Successes, res.Failures,
		res.Deleted, res.Kept, res.BytesFreed, res.ErrorMessage, id,
	)
	return err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransferRun(row rowScanner) (*TransferRun, error) {
	var r TransferRun
	var jobID, exitCode sql.NullInt64
	var completedAt sql.NullTime
	var errorMsg sql.NullString

	err := row.Scan(&r.ID, &jobID, &r.Direction, &r.Source, &r.Destination, &r.DryRun, &r.Sudo,
		&r.Background, &r.DeleteAfter, &r.Status, &exitCode, &r.StartedAt, &completedAt,
		&r.Successes, &r.Failures, &r.Deleted, &r.Kept, &r.BytesFreed, &r.LogPath, &errorMsg)
	if err != nil {
		return nil, err
	}

	if jobID.Valid {
		r.ScheduledJobID = &jobID.Int64
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		r.ExitCode = &code
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	if errorMsg.Valid {
		r.ErrorMessage = &errorMsg.String
	}

	return &r, nil
}

// DeletionRecord queries

// AddDeletionRecords stores the records of one deletion pass and the
// failure lines that kept paths in place, in a single transaction
func (db *DB) AddDeletionRecords(runID int64, records []DeletionRecord, failureLines []string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if _, err := tx.Exec(`
			INSERT INTO deletion_records (transfer_run_id, path, kind, outcome, reason, bytes)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, rec.Path, rec.Kind, rec.Outcome, rec.Reason, rec.Bytes,
		); err != nil {
			return errors.Errorf("failed to insert deletion record for %s: %w", rec.Path, err)
		}
	}

	for _, line := range failureLines {
		if _, err := tx.Exec(
			"INSERT INTO failure_lines (transfer_run_id, line) VALUES (?, ?)", runID, line,
		); err != nil {
			return errors.Errorf("failed to insert failure line: %w", err)
		}
	}

	return tx.Commit()
}

// ListDeletionRecords returns the records of a run in insertion order
func (db *DB) ListDeletionRecords(runID int64) ([]*DeletionRecord, error) {
	rows, err := db.Query(`
		SELECT id, transfer_run_id, path, kind, outcome, reason, bytes
		FROM deletion_records WHERE transfer_run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*DeletionRecord
	for rows.Next() {
		var r DeletionRecord
		if err := rows.Scan(&r.ID, &r.TransferRunID, &r.Path, &r.Kind, &r.Outcome, &r.Reason, &r.Bytes); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// ListFailureLines returns the failure lines recorded for a run
func (db *DB) ListFailureLines(runID int64) ([]string, error) {
	rows, err := db.Query("SELECT line FROM failure_lines WHERE transfer_run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ScheduledJob queries

const scheduledJobColumns = `id, name, source, destination, cron_expression, delete_after, sudo,
	enabled, last_run_at, next_run_at, created_at`

// CreateScheduledJob creates a new scheduled job
func (db *DB) CreateScheduledJob(job *ScheduledJob) (*ScheduledJob, error) {
	result, err := db.Exec(`
		INSERT INTO scheduled_jobs (name, source, destination, cron_expression, delete_after, sudo,
			enabled, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Name, job.Source, job.Destination, job.CronExpression, job.DeleteAfter, job.Sudo,
		job.Enabled, job.NextRunAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetScheduledJob(id)
}

// GetScheduledJob retrieves a scheduled job by ID
func (db *DB) GetScheduledJob(id int64) (*ScheduledJob, error) {
	row := db.QueryRow(`SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	return scanScheduledJob(row)
}

// GetScheduledJobByName retrieves a scheduled job by its unique name
func (db *DB) GetScheduledJobByName(name string) (*ScheduledJob, error) {
	row := db.QueryRow(`SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE name = ?`, name)
	return scanScheduledJob(row)
}

// ListScheduledJobs returns all scheduled jobs
func (db *DB) ListScheduledJobs() ([]*ScheduledJob, error) {
	return db.queryScheduledJobs(`SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs ORDER BY name`)
}

// GetEnabledJobs returns all enabled scheduled jobs
func (db *DB) GetEnabledJobs() ([]*ScheduledJob, error) {
	return db.queryScheduledJobs(`SELECT ` + scheduledJobColumns + `
		FROM scheduled_jobs WHERE enabled = 1 ORDER BY next_run_at`)
}

func (db *DB) queryScheduledJobs(query string, args ...any) ([]*ScheduledJob, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateJobLastRun updates the last run time and next run time
func (db *DB) UpdateJobLastRun(id int64, lastRun, nextRun time.Time) error {
	_, err := db.Exec(`
		UPDATE scheduled_jobs SET last_run_at = ?, next_run_at = ?
		WHERE id = ?`,
		lastRun.UTC(), nextRun.UTC(), id,
	)
	return err
}

// UpdateJobNextRun updates only the next run time
func (db *DB) UpdateJobNextRun(id int64, nextRun time.Time) error {
	_, err := db.Exec("UPDATE scheduled_jobs SET next_run_at = ? WHERE id = ?", nextRun.UTC(), id)
	return err
}

// SetJobEnabled enables or disables a job
func (db *DB) SetJobEnabled(id int64, enabled bool) error {
	_, err := db.Exec("UPDATE scheduled_jobs SET enabled = ? WHERE id = ?", enabled, id)
	return err
}

// DeleteScheduledJob deletes a scheduled job
func (db *DB) DeleteScheduledJob(id int64) error {
	_, err := db.Exec("DELETE FROM scheduled_jobs WHERE id = ?", id)
	return err
}

func scanScheduledJob(row rowScanner) (*ScheduledJob, error) {
	var j ScheduledJob
	var lastRun, nextRun sql.NullTime

	err := row.Scan(&j.ID, &j.Name, &j.Source, &j.Destination, &j.CronExpression, &j.DeleteAfter,
		&j.Sudo, &j.Enabled, &lastRun, &nextRun, &j.CreatedAt)
	if err != nil {
		return nil, err
	}

	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		j.NextRunAt = &nextRun.Time
	}

	return &j, nil
}

// Settings queries

// GetSetting returns the value stored under key, or "" when unset
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetSetting stores value under key, replacing any previous value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// CleanupOldData removes finished runs older than the retention period,
// along with their deletion records and failure lines
func (db *DB) CleanupOldData(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	old := "SELECT id FROM transfer_runs WHERE completed_at < ? AND status != 'running'"

	if _, err := tx.Exec("DELETE FROM deletion_records WHERE transfer_run_id IN ("+old+")", cutoff); err != nil {
		return 0, err
	}
	if _, err := tx.Exec("DELETE FROM failure_lines WHERE transfer_run_id IN ("+old+")", cutoff); err != nil {
		return 0, err
	}
	result, err := tx.Exec("DELETE FROM transfer_runs WHERE completed_at < ? AND status != 'running'", cutoff)
	if err != nil {
		return 0, err
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return removed, tx.Commit()
}
