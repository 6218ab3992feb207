package fclones

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrNotInstalled is returned when the fclones binary cannot be run
	ErrNotInstalled = errors.Base("fclones not found or not executable")
	// ErrDedupeFailed is returned when fclones exits with a nonzero status
	ErrDedupeFailed = errors.Base("fclones dedupe failed")
)

// Executor runs fclones commands
type Executor struct {
	binaryPath string
	readOutput func(io.Reader) ([]byte, error) // io.ReadAll when nil
}

// NewExecutor creates a new fclones executor
func NewExecutor() *Executor {
	return &Executor{
		binaryPath: "fclones",
	}
}

// SetBinaryPath sets a custom path to the fclones binary
func (e *Executor) SetBinaryPath(path string) {
	e.binaryPath = path
}

// CheckInstalled verifies that fclones is installed and accessible
func (e *Executor) CheckInstalled(ctx context.Context) error {
	output, err := exec.CommandContext(ctx, e.binaryPath, "--version").Output()
	if err != nil {
		return errors.WrapWith(err, ErrNotInstalled)
	}
	if !strings.Contains(string(output), "fclones") {
		return errors.Errorf("unexpected output from fclones --version: %s", output)
	}
	return nil
}

// Version returns the fclones version string
func (e *Executor) Version(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, e.binaryPath, "--version").Output()
	if err != nil {
		return "", errors.WrapWith(err, ErrNotInstalled)
	}
	return strings.TrimSpace(string(output)), nil
}

// Group runs fclones group and returns duplicate groups along with the raw
// JSON report, which fclones remove accepts as input.
func (e *Executor) Group(ctx context.Context, opts ScanOptions, progressChan chan<- Progress, log io.Writer) (*GroupOutput, []byte, error) {
	args := []string{"group", "--format", "json"}

	if opts.MinSize > 0 {
		args = append(args, "-s", strconv.FormatInt(opts.MinSize, 10))
	}
	for _, pattern := range opts.IncludePatterns {
		args = append(args, "--name", pattern)
	}
	for _, pattern := range opts.ExcludePatterns {
		args = append(args, "--exclude", pattern)
	}
	args = append(args, opts.Paths...)

	zerolog.Ctx(ctx).Debug().Strs("args", args).Msg("running fclones group")
	cmd := exec.CommandContext(ctx, e.binaryPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, errors.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, errors.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, errors.Errorf("failed to start fclones: %w", err)
	}

	// fclones writes progress to stderr
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		var r io.Reader = stderr
		if log != nil {
			r = io.TeeReader(stderr, log)
		}
		readProgress(r, progressChan)
	}()

	read := e.readOutput
	if read == nil {
		read = io.ReadAll
	}
	output, readErr := read(stdout)
	if readErr != nil {
		// Keep the pipe drained so fclones can exit
		_, _ = io.Copy(io.Discard, stdout)
	}
	<-progressDone
	waitErr := cmd.Wait()

	if readErr != nil {
		return nil, nil, errors.Errorf("failed to read output: %w", readErr)
	}
	if waitErr != nil {
		return nil, nil, errors.WrapWith(errors.Errorf("fclones group exited with error: %w", waitErr), ErrDedupeFailed)
	}

	var result GroupOutput
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, nil, errors.Errorf("failed to parse fclones output: %w", err)
	}

	return &result, output, nil
}

// Remove runs fclones remove on a group report, deleting all but one file of
// each group. Output is returned even when the command fails.
func (e *Executor) Remove(ctx context.Context, report []byte, opts RemoveOptions) (string, error) {
	args := []string{"remove"}

	if opts.DryRun {
		args = append(args, "--dry-run")
	}

	zerolog.Ctx(ctx).Debug().Strs("args", args).Msg("running fclones remove")
	cmd := exec.CommandContext(ctx, e.binaryPath, args...)
	cmd.Stdin = bytes.NewReader(report)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), errors.WrapWith(errors.Errorf("fclones remove failed: %w", err), ErrDedupeFailed)
	}

	return string(output), nil
}

// Dedupe finds duplicates under dir and removes the redundant copies, or
// only reports them when dryRun is set.
func (e *Executor) Dedupe(ctx context.Context, dir string, dryRun bool, progressChan chan<- Progress, log io.Writer) (*DedupeResult, error) {
	groups, report, err := e.Group(ctx, ScanOptions{Paths: []string{dir}}, progressChan, log)
	if err != nil {
		return nil, err
	}

	stats := groups.Header.Stats
	result := &DedupeResult{
		DryRun:         dryRun,
		Groups:         stats.GroupCount,
		RedundantFiles: stats.RedundantFileCount,
		RedundantBytes: stats.RedundantFileSize,
	}

	if len(groups.Groups) == 0 {
		return result, nil
	}

	output, err := e.Remove(ctx, report, RemoveOptions{DryRun: dryRun})
	result.Output = output
	if log != nil {
		io.WriteString(log, output)
	}
	if err != nil {
		return result, err
	}

	return result, nil
}

// readProgress parses fclones stderr for progress updates
func readProgress(r io.Reader, progressChan chan<- Progress) {
	if progressChan == nil {
		io.Copy(io.Discard, r)
		return
	}

	scanner := bufio.NewScanner(r)
	scanner.Split(scanLinesOrCR)

	for scanner.Scan() {
		p := parseProgressBar(scanner.Text())
		if p == nil {
			continue
		}

		select {
		case progressChan <- *p:
		default:
			// Don't block if channel is full
		}
	}
}

// scanLinesOrCR splits on \n or \r since progress bars redraw in place
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var progressBarRe = regexp.MustCompile(`(\d+)/(\d+):\s+([^\[]+?)\s*\[[^\]]*\]\s*([^\[]*?)\s*$`)

// parseProgressBar parses lines like "4/6: Grouping by prefix [####----] 12027 / 60000".
// When bars are concatenated the last one wins, since the pattern is anchored
// to the end of the line. Returns nil for other lines.
func parseProgressBar(line string) *Progress {
	m := progressBarRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	num, _ := strconv.Atoi(m[1])
	total, _ := strconv.Atoi(m[2])
	name := strings.TrimSpace(m[3])

	p := &Progress{
		Phase:        phaseNameToPhase(name),
		PhaseNum:     num,
		PhaseTotal:   total,
		PhaseName:    name,
		PhasePercent: -1,
	}

	if current, max, ok := strings.Cut(m[4], "/"); ok {
		cur := parseBytes(current)
		tot := parseBytes(max)
		if tot > 0 {
			p.PhasePercent = float64(cur) / float64(tot) * 100
		}
	}

	return p
}

// phaseNameToPhase maps an fclones phase description to a short phase name
func phaseNameToPhase(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "scanning"):
		return "scanning"
	case strings.Contains(lower, "contents"):
		return "hashing"
	case strings.Contains(lower, "grouping"):
		return "grouping"
	case strings.Contains(lower, "initializing"):
		return "initializing"
	default:
		return "processing"
	}
}

// parseBytes parses sizes like "4.5 GB", "1 KiB" or "12027". Invalid or
// negative input yields 0.
func parseBytes(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0
	}
	return int64(n)
}
