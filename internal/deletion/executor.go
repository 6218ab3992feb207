// Package deletion removes local paths that a push transfer confirmed as sent.
//
// Only paths the rsync parser classified as successes are candidates; the
// executor never infers success on its own. It can only narrow the set:
// candidates named by a failure line, matching a protected glob, or escaping
// the base directory are withheld.
package deletion

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/lyallcooper/shuttle/internal/rsync"
)

// Options configures a deletion pass
type Options struct {
	// Protect lists doublestar globs, relative to the base directory, that
	// are never deleted. A directory containing a protected path is kept whole.
	Protect []string

	remove    func(string) error
	removeAll func(string) error
}

var quotedPathRe = regexp.MustCompile(`"([^"]+)"`)

// Execute deletes every success in result beneath baseDir and reports the
// outcome of each. Failures are carried into the report without any
// deletion attempt. Paths that no longer exist are skipped without a record.
func Execute(ctx context.Context, baseDir string, result rsync.ParseResult, opts Options) *Report {
	log := zerolog.Ctx(ctx)

	if opts.remove == nil {
		opts.remove = os.Remove
	}
	if opts.removeAll == nil {
		opts.removeAll = os.RemoveAll
	}

	// rsync quotes absolute paths in its failure lines
	if abs, err := filepath.Abs(baseDir); err == nil {
		baseDir = abs
	}

	report := &Report{
		BaseDir:          baseDir,
		KeptDueToFailure: result.Lines(),
	}
	failurePaths := quotedPaths(result.Failures)

	for _, s := range result.Successes {
		rel := filepath.Clean(filepath.FromSlash(s.RelativePath))

		if !isContained(rel) {
			log.Warn().Str("path", s.RelativePath).Msg("refusing to delete path outside base directory")
			report.Withheld = append(report.Withheld, Record{
				Path:    s.RelativePath,
				Outcome: OutcomeWithheld,
				Reason:  "outside base directory",
			})
			continue
		}

		full := filepath.Join(baseDir, rel)
		info, err := os.Lstat(full)
		if err != nil {
			// Already gone or unreadable; nothing was confirmed to remove.
			log.Debug().Str("path", full).Err(err).Msg("skipping missing path")
			continue
		}

		var kind Kind
		switch {
		case info.IsDir():
			kind = KindDirectory
		case info.Mode().IsRegular():
			kind = KindFile
		default:
			log.Debug().Str("path", full).Str("mode", info.Mode().String()).Msg("skipping non-regular path")
			continue
		}

		rec := Record{Path: s.RelativePath, Kind: kind}

		if line, ok := implicated(baseDir, rel, failurePaths); ok {
			rec.Outcome = OutcomeWithheld
			rec.Reason = "named by failure: " + line
			report.Withheld = append(report.Withheld, rec)
			log.Warn().Str("path", full).Str("failure", line).Msg("withholding deletion")
			continue
		}

		if pattern, ok := protected(full, rel, kind, opts.Protect); ok {
			rec.Outcome = OutcomeWithheld
			rec.Reason = "protected by " + pattern
			report.Withheld = append(report.Withheld, rec)
			log.Info().Str("path", full).Str("pattern", pattern).Msg("withholding protected path")
			continue
		}

		if kind == KindDirectory {
			rec.Bytes = dirSize(full)
			err = opts.removeAll(full)
		} else {
			rec.Bytes = info.Size()
			err = opts.remove(full)
		}

		if err != nil {
			rec.Outcome = OutcomeDeletionFailed
			rec.Reason = err.Error()
			report.KeptDueToDeletionError = append(report.KeptDueToDeletionError, rec)
			log.Error().Str("path", full).Err(err).Msg("deletion failed")
			continue
		}

		rec.Outcome = OutcomeDeleted
		report.Deleted = append(report.Deleted, rec)
		log.Info().Str("path", full).Str("kind", string(kind)).Int64("bytes", rec.Bytes).Msg("deleted")
	}

	return report
}

// isContained reports whether a cleaned relative path stays strictly below its base
func isContained(rel string) bool {
	if rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

type failurePath struct {
	path string
	line string
}

// quotedPaths pulls the double-quoted paths rsync puts in its error lines
func quotedPaths(failures []rsync.Failure) []failurePath {
	var out []failurePath
	for _, f := range failures {
		for _, m := range quotedPathRe.FindAllStringSubmatch(f.RawLine, -1) {
			out = append(out, failurePath{path: filepath.Clean(filepath.FromSlash(m[1])), line: f.RawLine})
		}
	}
	return out
}

// implicated reports whether a failure names the candidate or something beneath it
func implicated(baseDir, rel string, failures []failurePath) (string, bool) {
	full := filepath.Clean(filepath.Join(baseDir, rel))
	for _, f := range failures {
		if filepath.IsAbs(f.path) {
			if within(f.path, full) {
				return f.line, true
			}
			continue
		}
		if within(f.path, rel) || within(filepath.Join(baseDir, f.path), full) {
			return f.line, true
		}
	}
	return "", false
}

// within reports whether path equals root or lies beneath it
func within(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// protected matches the candidate, and for directories everything inside it,
// against the protect globs.
func protected(full, rel string, kind Kind, patterns []string) (string, bool) {
	if len(patterns) == 0 {
		return "", false
	}

	if pattern, ok := matchAny(filepath.ToSlash(rel), patterns); ok {
		return pattern, true
	}
	if kind != KindDirectory {
		return "", false
	}

	var hit string
	_ = filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == full {
			return nil
		}
		inner, relErr := filepath.Rel(full, path)
		if relErr != nil {
			return nil
		}
		inner = filepath.ToSlash(filepath.Join(rel, inner))
		if pattern, ok := matchAny(inner, patterns); ok {
			hit = pattern
			return filepath.SkipAll
		}
		return nil
	})
	return hit, hit != ""
}

func matchAny(name string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return p, true
		}
	}
	return "", false
}

// dirSize sums the sizes of regular files under root, ignoring unreadable entries
func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
