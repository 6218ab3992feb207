// Package scheduler runs scheduled push jobs unattended, one at a time.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lyallcooper/shuttle/internal/db"
	"github.com/lyallcooper/shuttle/internal/rsync"
	"github.com/lyallcooper/shuttle/internal/transfer"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a standard 5-field cron expression or a descriptor
// such as @daily
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, errors.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// NextRun returns the first activation of expr after from
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

// Runner runs a transfer to completion. *transfer.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, req transfer.Request) (*transfer.Result, error)
}

var _ Runner = (*transfer.Orchestrator)(nil)

// Store holds scheduled jobs. *db.DB implements it.
type Store interface {
	GetEnabledJobs() ([]*db.ScheduledJob, error)
	UpdateJobLastRun(id int64, lastRun, nextRun time.Time) error
	UpdateJobNextRun(id int64, nextRun time.Time) error
	CleanupOldData(retentionDays int) (int64, error)
}

var _ Store = (*db.DB)(nil)

// Config configures a Scheduler
type Config struct {
	// Interval between checks for due jobs; defaults to a minute
	Interval time.Duration
	// RetentionDays of history kept; zero disables cleanup
	RetentionDays int
	// LogPath returns where a job's raw rsync output is kept; nil or ""
	// keeps nothing beyond what the deletion pass needs
	LogPath func(job *db.ScheduledJob) string
}

const cleanupInterval = 24 * time.Hour

// Scheduler manages scheduled jobs
type Scheduler struct {
	store  Store
	runner Runner
	cfg    Config
	now    func() time.Time

	mu          sync.Mutex
	running     bool
	stopChan    chan struct{}
	loopDone    chan struct{}
	cancel      context.CancelFunc // Cancels running jobs
	jobs        *errgroup.Group
	lastCleanup time.Time
}

// New creates a new scheduler
func New(store Store, runner Runner, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Scheduler{
		store:  store,
		runner: runner,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start starts the scheduler. The logger in ctx is used for job logs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.loopDone = make(chan struct{})

	ctx, s.cancel = context.WithCancel(ctx)
	s.jobs = newGroup()

	go s.run(ctx, s.stopChan, s.loopDone)
}

// newGroup returns the group jobs run in; one job at a time so deletions never overlap
func newGroup() *errgroup.Group {
	g := &errgroup.Group{}
	g.SetLimit(1)
	return g
}

// Stop stops the scheduler, cancels the running job and waits for it to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.cancel()
	loopDone, jobs := s.loopDone, s.jobs
	s.mu.Unlock()

	<-loopDone
	jobs.Wait()
}

// Running reports whether the scheduler has been started and not stopped
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.checkJobs(ctx)
	s.cleanup(ctx)
}

// checkJobs queues due jobs. Queueing blocks while a job is running, so a
// slow job delays the next check rather than overlapping it.
func (s *Scheduler) checkJobs(ctx context.Context) {
	log := zerolog.Ctx(ctx)

	jobs, err := s.store.GetEnabledJobs()
	if err != nil {
		log.Error().Err(err).Msg("scheduler: failed to get jobs")
		return
	}

	now := s.now()
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}

		next, err := NextRun(job.CronExpression, now)
		if err != nil {
			log.Error().Err(err).Int64("job", job.ID).Msg("scheduler: skipping job")
			continue
		}

		if job.NextRunAt == nil {
			if err := s.store.UpdateJobNextRun(job.ID, next); err != nil {
				log.Error().Err(err).Int64("job", job.ID).Msg("scheduler: failed to set next run")
			}
			continue
		}
		if now.Before(*job.NextRunAt) {
			continue
		}

		if err := s.store.UpdateJobLastRun(job.ID, now, next); err != nil {
			log.Error().Err(err).Int64("job", job.ID).Msg("scheduler: failed to update job last run")
			continue
		}

		s.jobs.Go(func() error {
			s.RunJob(ctx, job)
			return nil
		})
	}
}

// RunJob runs one job through the orchestrator and waits for it, including
// its deletion pass
func (s *Scheduler) RunJob(ctx context.Context, job *db.ScheduledJob) (*transfer.Result, error) {
	log := zerolog.Ctx(ctx).With().Int64("job", job.ID).Str("name", job.Name).Logger()
	ctx = log.WithContext(ctx)

	if ctx.Err() != nil {
		log.Info().Msg("scheduler: job cancelled before start")
		return nil, ctx.Err()
	}

	req := transfer.Request{
		Direction:      rsync.DirectionPush,
		Source:         job.Source,
		Destination:    job.Destination,
		Options:        transfer.Options{UseRemoteSudo: job.Sudo},
		DeleteAfter:    job.DeleteAfter,
		ScheduledJobID: &job.ID,
	}
	if s.cfg.LogPath != nil {
		req.LogPath = s.cfg.LogPath(job)
	}

	log.Info().Msg("scheduler: running job")
	res, err := s.runner.Run(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: job failed")
		return res, err
	}

	ev := log.Info().Int64("run", res.RunID)
	if res.Report != nil {
		ev = ev.Stringer("summary", res.Report.Summary())
	}
	ev.Msg("scheduler: job finished")
	return res, nil
}

func (s *Scheduler) cleanup(ctx context.Context) {
	if s.cfg.RetentionDays <= 0 {
		return
	}
	now := s.now()
	if !s.lastCleanup.IsZero() && now.Sub(s.lastCleanup) < cleanupInterval {
		return
	}
	s.lastCleanup = now

	n, err := s.store.CleanupOldData(s.cfg.RetentionDays)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("scheduler: history cleanup failed")
		return
	}
	if n > 0 {
		zerolog.Ctx(ctx).Info().Int64("runs", n).Msg("scheduler: pruned old history")
	}
}
