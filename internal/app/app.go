// Package app provides the component wiring shared by every shuttle command.
package app

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/lyallcooper/shuttle/internal/config"
	"github.com/lyallcooper/shuttle/internal/db"
	"github.com/lyallcooper/shuttle/internal/fclones"
	"github.com/lyallcooper/shuttle/internal/logging"
	"github.com/lyallcooper/shuttle/internal/rsync"
	"github.com/lyallcooper/shuttle/internal/scheduler"
	"github.com/lyallcooper/shuttle/internal/session"
	"github.com/lyallcooper/shuttle/internal/transfer"
)

// Options contains the global command-line settings.
type Options struct {
	// ConfigPath overrides the default config file location.
	ConfigPath string

	// Debug enables debug logging on the console.
	Debug bool

	// PersistLogs keeps JSON logs and raw rsync/fclones output in the log directory.
	PersistLogs bool
}

// App holds the initialized components of one invocation.
type App struct {
	Config    *config.Config
	Logs      *logging.Session
	Database  *db.DB
	Rsync     *rsync.Executor
	Fclones   *fclones.Executor
	Transfers *transfer.Orchestrator
}

// New loads configuration, sets up logging and opens the database.
// Call App.Close when done to release resources.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logs, err := logging.Setup(logging.Options{
		Debug:   opts.Debug,
		Persist: opts.PersistLogs,
		Dir:     cfg.LogDir,
	})
	if err != nil {
		return nil, err
	}
	log := logs.Logger

	log.Debug().
		Str("config", cfg.Path()).
		Str("database", cfg.DBPath).
		Int("retention_days", cfg.RetentionDays).
		Msg("shuttle starting")
	if logs.Persistent() {
		log.Info().Str("file", logs.FilePath()).Msg("logging to file")
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logs.Close()
		return nil, errors.Errorf("failed to open database: %w", err)
	}

	rs := rsync.NewExecutor()
	rs.SetBinaryPath(cfg.RsyncBinary)

	fc := fclones.NewExecutor()
	fc.SetBinaryPath(cfg.FclonesBinary)

	transfers := transfer.New(rs, database, transfer.Config{
		CaptureDir: cfg.CaptureDir,
		Console:    os.Stdout,
		Protect:    cfg.Protect,
	})

	return &App{
		Config:    cfg,
		Logs:      logs,
		Database:  database,
		Rsync:     rs,
		Fclones:   fc,
		Transfers: transfers,
	}, nil
}

// Context returns ctx carrying the invocation's logger.
func (a *App) Context(ctx context.Context) context.Context {
	return a.Logs.Logger.WithContext(ctx)
}

// CheckTools warns when rsync or fclones cannot be found. Only rsync is required.
func (a *App) CheckTools(ctx context.Context, needFclones bool) error {
	log := zerolog.Ctx(ctx)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.Rsync.CheckInstalled(ctx); err != nil {
		return err
	}
	if err := a.Fclones.CheckInstalled(ctx); err != nil {
		if needFclones {
			return err
		}
		log.Debug().Err(err).Msg("fclones not found, dedupe disabled")
	}
	return nil
}

// Controller builds an interactive session controller with the remembered context loaded.
func (a *App) Controller(prompter session.Prompter, spinner session.SpinnerFunc, withDedupe bool) (*session.Controller, error) {
	sc, err := session.LoadContext(a.Database, session.Context{
		LastRemote: a.Config.DefaultRemote,
		CaptureDir: a.Config.CaptureDir,
		LogDir:     a.Config.LogDir,
		LogEnabled: a.Logs.Persistent(),
	})
	if err != nil {
		return nil, err
	}

	deps := session.Deps{
		Prompter:    prompter,
		Transfers:   a.Transfers,
		Settings:    a.Database,
		Logs:        a.Logs,
		Out:         os.Stdout,
		Spinner:     spinner,
		SudoDefault: a.Config.RemoteSudo,
	}
	if withDedupe {
		deps.Deduper = a.Fclones
	}
	return session.NewController(deps, sc), nil
}

// Scheduler builds the scheduler for scheduled push jobs. Each job run keeps
// its raw rsync output in the log directory when logs are persisted.
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.New(a.Database, a.Transfers, scheduler.Config{
		RetentionDays: a.Config.RetentionDays,
		LogPath: func(job *db.ScheduledJob) string {
			return a.Logs.JobLogPath(sanitize(job.Name))
		},
	})
}

// Close releases all resources held by the app.
func (a *App) Close() {
	if a.Database != nil {
		a.Database.Close()
	}
	if a.Logs != nil {
		a.Logs.Close()
	}
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// BuildVersionString formats a release version, or a dev version with a short commit.
func BuildVersionString(version, commit string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	shortCommit := commit
	if len(shortCommit) > 7 {
		shortCommit = shortCommit[:7]
	}
	if shortCommit == "" {
		shortCommit = "unknown"
	}
	return version + "-" + shortCommit
}
