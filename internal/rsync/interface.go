package rsync

import (
	"context"
	"io"
	"os"
)

// ExecutorInterface defines the interface for rsync operations.
// This allows mocking the executor in tests.
type ExecutorInterface interface {
	// CheckInstalled verifies that rsync is installed and accessible
	CheckInstalled(ctx context.Context) error

	// Version returns the rsync version string
	Version(ctx context.Context) (string, error)

	// Transfer runs rsync to completion and reports its exit status
	Transfer(ctx context.Context, source, destination string, opts TransferOptions, out io.Writer) (TransferStatus, error)

	// Spawn starts rsync detached and returns its pid without waiting
	Spawn(ctx context.Context, source, destination string, opts TransferOptions, out *os.File) (int, error)
}

// Ensure Executor implements ExecutorInterface
var _ ExecutorInterface = (*Executor)(nil)
