package fclones

import (
	"context"
	"io"
)

// ExecutorInterface defines the interface for fclones operations.
// This allows mocking the executor in tests.
type ExecutorInterface interface {
	// CheckInstalled verifies that fclones is installed and accessible
	CheckInstalled(ctx context.Context) error

	// Version returns the fclones version string
	Version(ctx context.Context) (string, error)

	// Dedupe finds and removes (or, in dry-run mode, lists) redundant copies under dir
	Dedupe(ctx context.Context, dir string, dryRun bool, progressChan chan<- Progress, log io.Writer) (*DedupeResult, error)
}

// Ensure Executor implements ExecutorInterface
var _ ExecutorInterface = (*Executor)(nil)
