// Package logging configures zerolog for the CLI and manages the persistent
// log files written when --log is set.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const stampFormat = "20060102-150405"

// Options configures logging for one invocation
type Options struct {
	Debug   bool
	Persist bool   // Write JSON logs and raw tool output under Dir
	Dir     string // Log directory, required when Persist is set
	Console io.Writer
}

// Session is the logging state of one invocation
type Session struct {
	Logger zerolog.Logger

	dir  string
	file *os.File
	now  func() time.Time
}

// Setup builds the logger: a console writer at info (debug with Debug),
// plus a JSON file in the log directory when Persist is set. The logger is
// also installed as zerolog's default context logger.
func Setup(opts Options) (*Session, error) {
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	s := &Session{now: time.Now}
	var w io.Writer = zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen}

	if opts.Persist {
		if opts.Dir == "" {
			return nil, errors.New("log directory is required")
		}
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, errors.Errorf("failed to create log directory: %w", err)
		}
		s.dir = opts.Dir

		f, err := os.OpenFile(s.path("shuttle"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Errorf("failed to open log file: %w", err)
		}
		s.file = f
		// The file always gets debug detail
		w = zerolog.MultiLevelWriter(
			levelWriter{Writer: w, min: level},
			f,
		)
		level = zerolog.DebugLevel
	}

	s.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &s.Logger

	return s, nil
}

// Persistent reports whether raw tool output should be kept on disk
func (s *Session) Persistent() bool {
	return s.dir != ""
}

// FilePath returns the JSON log file, or "" when not persisting
func (s *Session) FilePath() string {
	if s.file == nil {
		return ""
	}
	return s.file.Name()
}

// TransferLogPath returns a new path for raw rsync output, or "" when not persisting
func (s *Session) TransferLogPath() string {
	if !s.Persistent() {
		return ""
	}
	return s.path("transfer")
}

// JobLogPath returns a new path for a scheduled job's raw rsync output, or "" when not persisting
func (s *Session) JobLogPath(job string) string {
	if !s.Persistent() {
		return ""
	}
	return s.path("job-" + job)
}

// OpenDedupeLog creates a file for raw fclones output. It returns a nil
// writer when not persisting.
func (s *Session) OpenDedupeLog() (io.WriteCloser, string, error) {
	if !s.Persistent() {
		return nil, "", nil
	}
	path := s.path("dedupe")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", errors.Errorf("failed to open dedupe log: %w", err)
	}
	return f, path, nil
}

// Close flushes and closes the JSON log file
func (s *Session) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

func (s *Session) path(kind string) string {
	return filepath.Join(s.dir, kind+"-"+s.now().Format(stampFormat)+".log")
}

// levelWriter drops events below min, so the console keeps its own level
// while the file receives everything.
type levelWriter struct {
	io.Writer
	min zerolog.Level
}

func (w levelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < w.min {
		return len(p), nil
	}
	return w.Write(p)
}
