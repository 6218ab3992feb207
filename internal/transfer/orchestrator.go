// Package transfer runs rsync for a session or scheduled job, captures its
// output, and threads confirmed successes into the deletion executor.
package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/lyallcooper/shuttle/internal/db"
	"github.com/lyallcooper/shuttle/internal/deletion"
	"github.com/lyallcooper/shuttle/internal/rsync"
)

var (
	// ErrTransferFailed is returned when rsync exits with a nonzero status
	ErrTransferFailed = errors.Base("transfer failed")
	// ErrMissingOutputArtifact is recorded when the captured output cannot be
	// found after a successful transfer; deletion is skipped
	ErrMissingOutputArtifact = errors.Base("transfer output artifact missing")
)

// Options configures how a transfer runs
type Options struct {
	DryRun          bool
	UseRemoteSudo   bool
	RunInBackground bool
}

// Request describes one transfer
type Request struct {
	Direction   rsync.Direction
	Source      string
	Destination string
	Options     Options
	// DeleteAfter removes confirmed-sent local files; honored only for
	// non-dry-run pushes
	DeleteAfter bool
	// LogPath keeps the raw rsync output in this file when set
	LogPath string
	// ScheduledJobID links the run to the job that started it
	ScheduledJobID *int64
}

// DeletionRequested reports whether the run ends with a deletion pass if rsync succeeds
func (r Request) DeletionRequested() bool {
	return r.Direction == rsync.DirectionPush && r.DeleteAfter && !r.Options.DryRun
}

// Validate checks the request before anything is started
func (r Request) Validate() error {
	if !r.Direction.Valid() {
		return errors.Errorf("invalid direction %q", r.Direction)
	}
	if r.Source == "" || r.Destination == "" {
		return errors.New("source and destination are required")
	}
	if r.Direction == rsync.DirectionPush {
		if _, err := os.Stat(r.Source); err != nil {
			return errors.Errorf("push source: %w", err)
		}
	}
	return nil
}

// DeletionBase returns the local directory that rsync reports paths
// relative to. A source ending in "/" sends its contents, so paths are
// relative to the source itself; otherwise they include the source's own
// name and are relative to its parent.
func DeletionBase(source string) string {
	if strings.HasSuffix(source, "/") || strings.HasSuffix(source, string(filepath.Separator)) {
		return filepath.Clean(source)
	}
	return filepath.Dir(filepath.Clean(source))
}

// Status is the final state of a run
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDetached  Status = "detached"
)

// Result is the outcome of a finished (or detached) run
type Result struct {
	RunID    int64 // Zero when no store is configured
	Status   Status
	ExitCode int
	PID      int // Set for detached runs
	Parsed   rsync.ParseResult
	// Report is nil unless a deletion pass ran
	Report *deletion.Report
	// ArtifactErr is ErrMissingOutputArtifact when deletion was requested
	// but the captured output was gone
	ArtifactErr error
	LogPath     string
}

// Store records transfer history. *db.DB implements it.
type Store interface {
	CreateTransferRun(run *db.TransferRun) (*db.TransferRun, error)
	CompleteTransferRun(id int64, res db.TransferRunResult) error
	AddDeletionRecords(runID int64, records []db.DeletionRecord, failureLines []string) error
}

var _ Store = (*db.DB)(nil)

// Config configures an Orchestrator
type Config struct {
	// CaptureDir holds temporary capture files when no log path is set
	CaptureDir string
	// Console receives a copy of foreground output; nil disables it
	Console io.Writer
	// Protect globs are never deleted
	Protect []string
}

// Orchestrator runs transfers and their deletion passes
type Orchestrator struct {
	rsync rsync.ExecutorInterface
	store Store
	cfg   Config
}

// New creates an orchestrator. store may be nil to skip history.
func New(executor rsync.ExecutorInterface, store Store, cfg Config) *Orchestrator {
	if cfg.CaptureDir == "" {
		cfg.CaptureDir = os.TempDir()
	}
	return &Orchestrator{
		rsync: executor,
		store: store,
		cfg:   cfg,
	}
}

// Run starts a transfer and waits for it, including any deletion pass
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	task, err := o.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return task.Wait()
}

// Start launches a transfer. Background runs without a deletion pass are
// detached immediately and the returned task is already done; all other
// runs complete when Task.Wait returns.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := zerolog.Ctx(ctx).With().
		Str("direction", string(req.Direction)).
		Str("source", req.Source).
		Str("destination", req.Destination).
		Logger()
	ctx = log.WithContext(ctx)

	if req.DeleteAfter && !req.DeletionRequested() {
		log.Warn().Msg("delete-after ignored: only applies to pushes that are not dry runs")
	}

	runID, err := o.recordStart(req)
	if err != nil {
		return nil, err
	}

	capture, err := o.openCapture(req)
	if err != nil {
		o.recordFailure(ctx, runID, nil, err)
		return nil, err
	}

	opts := rsync.TransferOptions{DryRun: req.Options.DryRun, UseRemoteSudo: req.Options.UseRemoteSudo}

	if req.Options.RunInBackground && !req.DeletionRequested() {
		return o.detach(ctx, req, runID, capture, opts)
	}

	var out io.Writer = io.Discard
	if capture != nil {
		out = capture.file
	}
	if !req.Options.RunInBackground && o.cfg.Console != nil {
		if capture != nil {
			out = io.MultiWriter(o.cfg.Console, capture.file)
		} else {
			out = o.cfg.Console
		}
	}

	task := newTask()
	task.group.Go(func() error {
		defer close(task.done)
		log.Info().Bool("background", req.Options.RunInBackground).Msg("transfer started")
		status, err := o.rsync.Transfer(ctx, req.Source, req.Destination, opts, out)
		task.result, task.err = o.finish(ctx, req, runID, capture, status, err)
		return task.err
	})

	return task, nil
}

func (o *Orchestrator) detach(ctx context.Context, req Request, runID int64, capture *captureFile, opts rsync.TransferOptions) (*Task, error) {
	log := zerolog.Ctx(ctx)

	var file *os.File
	if capture != nil {
		file = capture.file
	}
	pid, err := o.rsync.Spawn(ctx, req.Source, req.Destination, opts, file)
	if capture != nil {
		// The child holds its own descriptor
		capture.file.Close()
	}
	if err != nil {
		if capture != nil {
			capture.discard(ctx)
		}
		o.recordFailure(ctx, runID, nil, err)
		return nil, err
	}

	log.Info().Int("pid", pid).Msg("transfer detached")

	result := &Result{RunID: runID, Status: StatusDetached, PID: pid, LogPath: req.LogPath}
	o.recordComplete(ctx, runID, db.TransferRunResult{Status: db.TransferRunStatusDetached})

	task := newTask()
	task.result = result
	task.detached = true
	close(task.done)
	return task, nil
}

// finish analyzes a completed transfer and runs the deletion pass when every
// gate passes: push, not a dry run, delete requested, exit status zero.
func (o *Orchestrator) finish(ctx context.Context, req Request, runID int64, capture *captureFile, status rsync.TransferStatus, runErr error) (*Result, error) {
	log := zerolog.Ctx(ctx)
	if capture != nil {
		capture.file.Close()
		defer capture.discard(ctx)
	}

	result := &Result{RunID: runID, ExitCode: status.ExitCode, LogPath: req.LogPath}

	if runErr != nil {
		result.Status = StatusFailed
		o.recordFailure(ctx, runID, nil, runErr)
		return result, runErr
	}

	if !status.OK() {
		result.Status = StatusFailed
		err := errors.WrapWith(errors.Errorf("rsync exited with status %d", status.ExitCode), ErrTransferFailed)
		log.Error().Int("exit_code", status.ExitCode).Msg("transfer failed")
		// Failure lines still go to history even though nothing is deleted
		if capture != nil {
			if data, readErr := os.ReadFile(capture.path); readErr == nil {
				result.Parsed = rsync.Parse(string(data))
			}
		}
		o.recordFailure(ctx, runID, result, err)
		return result, err
	}

	result.Status = StatusCompleted

	if capture == nil {
		log.Info().Msg("transfer completed")
		o.recordResult(ctx, result)
		return result, nil
	}

	data, err := os.ReadFile(capture.path)
	if err != nil {
		if !req.DeletionRequested() {
			log.Warn().Err(err).Msg("could not read captured output")
			o.recordResult(ctx, result)
			return result, nil
		}
		result.ArtifactErr = errors.WrapWith(err, ErrMissingOutputArtifact)
		log.Error().Err(err).Str("capture", capture.path).Msg("captured output missing, nothing deleted")
		o.recordResult(ctx, result)
		return result, nil
	}
	result.Parsed = rsync.Parse(string(data))

	log.Info().
		Int("successes", len(result.Parsed.Successes)).
		Int("failures", len(result.Parsed.Failures)).
		Msg("transfer completed")

	if req.DeletionRequested() {
		base := DeletionBase(req.Source)
		result.Report = deletion.Execute(ctx, base, result.Parsed, deletion.Options{Protect: o.cfg.Protect})
		log.Info().Str("base", base).Stringer("summary", result.Report.Summary()).Msg("deletion pass finished")
	}

	o.recordResult(ctx, result)
	return result, nil
}

// captureFile is where rsync output is written for later analysis
type captureFile struct {
	file *os.File
	path string
	temp bool // Removed once analyzed
}

func (c *captureFile) discard(ctx context.Context) {
	if !c.temp {
		return
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("capture", c.path).Msg("failed to remove capture file")
	}
}

// openCapture returns the file rsync output is captured to: the log file
// when one is set, a temp file when a deletion pass needs the output, and
// nil when nothing reads it.
func (o *Orchestrator) openCapture(req Request) (*captureFile, error) {
	if req.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(req.LogPath), 0o755); err != nil {
			return nil, errors.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(req.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, errors.Errorf("failed to open transfer log: %w", err)
		}
		return &captureFile{file: f, path: req.LogPath}, nil
	}

	if !req.DeletionRequested() {
		return nil, nil
	}

	if err := os.MkdirAll(o.cfg.CaptureDir, 0o700); err != nil {
		return nil, errors.Errorf("failed to create capture directory: %w", err)
	}
	f, err := os.CreateTemp(o.cfg.CaptureDir, "transfer-*.out")
	if err != nil {
		return nil, errors.Errorf("failed to create capture file: %w", err)
	}
	return &captureFile{file: f, path: f.Name(), temp: true}, nil
}
