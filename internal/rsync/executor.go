package rsync

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// ErrNotInstalled is returned when the rsync binary cannot be run
var ErrNotInstalled = errors.Base("rsync not found or not executable")

// Executor runs rsync commands
type Executor struct {
	binaryPath string
}

// NewExecutor creates a new rsync executor
func NewExecutor() *Executor {
	return &Executor{
		binaryPath: "rsync",
	}
}

// SetBinaryPath sets a custom path to the rsync binary
func (e *Executor) SetBinaryPath(path string) {
	e.binaryPath = path
}

// CheckInstalled verifies that rsync is installed and accessible
func (e *Executor) CheckInstalled(ctx context.Context) error {
	output, err := exec.CommandContext(ctx, e.binaryPath, "--version").Output()
	if err != nil {
		return errors.WrapWith(err, ErrNotInstalled)
	}
	if !strings.Contains(string(output), "rsync") {
		return errors.Errorf("unexpected output from rsync --version: %s", output)
	}
	return nil
}

// Version returns the first line of rsync --version
func (e *Executor) Version(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, e.binaryPath, "--version").Output()
	if err != nil {
		return "", errors.WrapWith(err, ErrNotInstalled)
	}
	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first), nil
}

// BuildArgs returns the rsync arguments for copying source to destination:
// archive mode, verbose per-item listing, human-readable sizes and progress.
func BuildArgs(source, destination string, opts TransferOptions) []string {
	args := []string{"-a", "-v", "-h", "--progress"}

	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	if opts.UseRemoteSudo {
		args = append(args, "--rsync-path=sudo rsync")
	}

	return append(args, source, destination)
}

// Transfer runs rsync to completion, writing its combined stdout and stderr
// to out. A nonzero exit code is reported in the status, not as an error;
// the error is reserved for failures to start or wait on the process.
func (e *Executor) Transfer(ctx context.Context, source, destination string, opts TransferOptions, out io.Writer) (TransferStatus, error) {
	cmd, err := e.command(ctx, source, destination, opts, out)
	if err != nil {
		return TransferStatus{}, err
	}

	if err := cmd.Start(); err != nil {
		return TransferStatus{}, errors.Errorf("failed to start rsync: %w", err)
	}

	return wait(cmd)
}

// Spawn starts rsync detached from the console and returns without waiting.
// Output goes to out, which must be a file so the child keeps writing after
// this process exits; nil discards it.
func (e *Executor) Spawn(ctx context.Context, source, destination string, opts TransferOptions, out *os.File) (int, error) {
	if out == nil {
		devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return 0, errors.Errorf("failed to open %s: %w", os.DevNull, err)
		}
		defer devNull.Close()
		out = devNull
	}
	// The context would kill the child when the caller returns.
	cmd, err := e.command(context.WithoutCancel(ctx), source, destination, opts, out)
	if err != nil {
		return 0, err
	}
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return 0, errors.Errorf("failed to start rsync: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, errors.Errorf("failed to release rsync process: %w", err)
	}
	return pid, nil
}

func (e *Executor) command(ctx context.Context, source, destination string, opts TransferOptions, out io.Writer) (*exec.Cmd, error) {
	if source == "" || destination == "" {
		return nil, errors.New("source and destination are required")
	}

	args := BuildArgs(source, destination, opts)
	zerolog.Ctx(ctx).Debug().Str("binary", e.binaryPath).Strs("args", args).Msg("running rsync")

	cmd := exec.CommandContext(ctx, e.binaryPath, args...)
	// Same writer for both streams: exec copies them through one goroutine.
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd, nil
}

func wait(cmd *exec.Cmd) (TransferStatus, error) {
	err := cmd.Wait()
	if err == nil {
		return TransferStatus{ExitCode: 0}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal
			code = 1
		}
		return TransferStatus{ExitCode: code}, nil
	}
	return TransferStatus{}, errors.Errorf("rsync exited with error: %w", err)
}
