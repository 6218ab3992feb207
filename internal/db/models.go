package db

import (
	"time"
)

// TransferRunStatus represents the status of a transfer run
type TransferRunStatus string

const (
	TransferRunStatusRunning   TransferRunStatus = "running"
	TransferRunStatusCompleted TransferRunStatus = "completed"
	TransferRunStatusFailed    TransferRunStatus = "failed"
	TransferRunStatusDetached  TransferRunStatus = "detached" // Left running in the background, never analyzed
)

// TransferRun represents a single rsync invocation and its deletion pass
type TransferRun struct {
	ID             int64
	ScheduledJobID *int64
	Direction      string
	Source         string
	Destination    string
	DryRun         bool
	Sudo           bool
	Background     bool
	DeleteAfter    bool
	Status         TransferRunStatus
	ExitCode       *int
	StartedAt      time.Time
	CompletedAt    *time.Time
	Successes      int
	Failures       int
	Deleted        int
	Kept           int
	BytesFreed     int64
	LogPath        string
	ErrorMessage   *string
}

// Duration returns how long the run took, or zero while it is running
func (r *TransferRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// TransferRunResult holds the values recorded when a run finishes
type TransferRunResult struct {
	Status       TransferRunStatus
	ExitCode     *int
	Successes    int
	Failures     int
	Deleted      int
	Kept         int
	BytesFreed   int64
	ErrorMessage *string
}

// DeletionRecord is one path considered by a deletion pass
type DeletionRecord struct {
	ID            int64
	TransferRunID int64
	Path          string
	Kind          string // 'file', 'directory'
	Outcome       string // 'deleted', 'deletion_failed', 'withheld'
	Reason        string
	Bytes         int64
}

// ScheduledJob represents a cron job for unattended pushes
type ScheduledJob struct {
	ID             int64
	Name           string
	Source         string
	Destination    string
	CronExpression string
	DeleteAfter    bool
	Sudo           bool
	Enabled        bool
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	CreatedAt      time.Time
}

// Setting keys
const (
	SettingLastLocalPath = "last_local_path"
	SettingLastRemote    = "last_remote"
)
