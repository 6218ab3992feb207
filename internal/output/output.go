// Package output renders transfer, deletion, dedupe and history results for
// the terminal.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/lyallcooper/shuttle/internal/db"
	"github.com/lyallcooper/shuttle/internal/deletion"
	"github.com/lyallcooper/shuttle/internal/fclones"
	"github.com/lyallcooper/shuttle/internal/transfer"
)

const (
	indent    = 2  // spaces before each entry
	pathWidth = 48 // column width for paths
)

type symbol struct {
	mark    string
	color   color.Attribute
	meaning string
}

var (
	symDeleted  = symbol{"✓", color.FgGreen, "deleted locally after a confirmed transfer"}
	symFailed   = symbol{"✗", color.FgRed, "kept: rsync reported a failure"}
	symDelError = symbol{"!", color.FgYellow, "kept: deletion returned an error"}
	symWithheld = symbol{"•", color.FgCyan, "kept: withheld by a safety check"}
)

func (s symbol) String() string {
	return color.New(s.color).Sprint(s.mark)
}

// Legend prints what each summary mark means
func Legend(w io.Writer) {
	fmt.Fprintln(w, color.New(color.Bold).Sprint("Legend"))
	for _, s := range []symbol{symDeleted, symFailed, symDelError, symWithheld} {
		fmt.Fprintf(w, "%*s%s %s\n", indent, "", s, s.meaning)
	}
}

// Summary prints a deletion report. It always prints the headline, even
// when nothing was deleted.
func Summary(w io.Writer, report *deletion.Report) {
	s := report.Summary()

	headline := color.New(color.Bold).Sprint(s.String())
	if s.BytesFreed > 0 {
		headline += color.New(color.Faint).Sprintf(" (%s freed)", humanize.Bytes(uint64(s.BytesFreed)))
	}
	fmt.Fprintln(w, headline)

	for _, rec := range report.Deleted {
		fmt.Fprintf(w, "%*s%s %-*s %s\n", indent, "", symDeleted, pathWidth, displayPath(rec), humanize.Bytes(uint64(rec.Bytes)))
	}
	for _, line := range report.KeptDueToFailure {
		fmt.Fprintf(w, "%*s%s %s\n", indent, "", symFailed, line)
	}
	for _, rec := range report.KeptDueToDeletionError {
		fmt.Fprintf(w, "%*s%s %-*s %s\n", indent, "", symDelError, pathWidth, displayPath(rec), color.New(color.FgYellow).Sprint(rec.Reason))
	}
	for _, rec := range report.Withheld {
		fmt.Fprintf(w, "%*s%s %-*s %s\n", indent, "", symWithheld, pathWidth, displayPath(rec), color.New(color.Faint).Sprint(rec.Reason))
	}
}

func displayPath(rec deletion.Record) string {
	if rec.Kind == deletion.KindDirectory {
		return rec.Path + "/"
	}
	return rec.Path
}

// Result prints the outcome of a transfer and, when one ran, its deletion pass
func Result(w io.Writer, res *transfer.Result) {
	switch res.Status {
	case transfer.StatusDetached:
		fmt.Fprintf(w, "%s transfer running in the background (pid %d)\n",
			color.New(color.FgCyan).Sprint("◆"), res.PID)
		if res.LogPath != "" {
			fmt.Fprintf(w, "%*soutput: %s\n", indent, "", res.LogPath)
		}
		return
	case transfer.StatusFailed:
		fmt.Fprintf(w, "%s transfer failed (rsync exit %d); nothing was deleted\n",
			color.New(color.FgRed).Sprint("✗"), res.ExitCode)
		for _, f := range res.Parsed.Failures {
			fmt.Fprintf(w, "%*s%s %s\n", indent, "", symFailed, f.RawLine)
		}
		return
	}

	fmt.Fprintf(w, "%s transfer complete: %d sent, %d failed\n",
		color.New(color.FgGreen).Sprint("✓"), len(res.Parsed.Successes), len(res.Parsed.Failures))

	if res.ArtifactErr != nil {
		fmt.Fprintf(w, "%s %s; nothing was deleted\n", color.New(color.FgYellow).Sprint("!"), res.ArtifactErr)
	}
	if res.Report != nil {
		Summary(w, res.Report)
	}
	if res.LogPath != "" {
		fmt.Fprintf(w, "%s\n", color.New(color.Faint).Sprintf("log: %s", res.LogPath))
	}
}

// Dedupe prints the outcome of an fclones pass
func Dedupe(w io.Writer, res *fclones.DedupeResult) {
	verb := "removed"
	if res.DryRun {
		verb = "would remove"
	}
	if res.Groups == 0 {
		fmt.Fprintf(w, "%s no duplicates found\n", color.New(color.FgGreen).Sprint("✓"))
		return
	}
	fmt.Fprintf(w, "%s %d duplicate groups: %s %s files (%s)\n",
		color.New(color.FgGreen).Sprint("✓"), res.Groups, verb,
		humanize.Comma(int64(res.RedundantFiles)), humanize.Bytes(uint64(res.RedundantBytes)))
}

// History prints transfer runs, newest first
func History(w io.Writer, runs []*db.TransferRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no transfers recorded")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s %-4d %-5s %s → %s\n", statusMark(r.Status), r.ID, r.Direction, r.Source, r.Destination)

		var details []string
		details = append(details, humanize.Time(r.StartedAt))
		if d := r.Duration(); d > 0 {
			details = append(details, "took "+d.Round(time.Second).String())
		}
		if r.DryRun {
			details = append(details, "dry run")
		}
		if r.DeleteAfter {
			details = append(details, fmt.Sprintf("%d deleted, %d kept, %s freed", r.Deleted, r.Kept, humanize.Bytes(uint64(r.BytesFreed))))
		} else if r.Status == db.TransferRunStatusCompleted {
			details = append(details, fmt.Sprintf("%d sent, %d failed", r.Successes, r.Failures))
		}
		if r.ErrorMessage != nil {
			details = append(details, *r.ErrorMessage)
		}
		fmt.Fprintf(w, "%*s%s\n", indent+2, "", color.New(color.Faint).Sprint(strings.Join(details, " · ")))
	}
}

// Records prints the per-path rows of one run
func Records(w io.Writer, records []*db.DeletionRecord, failures []string) {
	for _, rec := range records {
		s := symWithheld
		switch deletion.Outcome(rec.Outcome) {
		case deletion.OutcomeDeleted:
			s = symDeleted
		case deletion.OutcomeDeletionFailed:
			s = symDelError
		}
		fmt.Fprintf(w, "%*s%s %-*s %s\n", indent, "", s, pathWidth, rec.Path, rec.Reason)
	}
	for _, line := range failures {
		fmt.Fprintf(w, "%*s%s %s\n", indent, "", symFailed, line)
	}
}

func statusMark(status db.TransferRunStatus) string {
	switch status {
	case db.TransferRunStatusCompleted:
		return color.New(color.FgGreen).Sprint("✓")
	case db.TransferRunStatusFailed:
		return color.New(color.FgRed).Sprint("✗")
	case db.TransferRunStatusDetached:
		return color.New(color.FgCyan).Sprint("◆")
	default:
		return color.New(color.FgYellow).Sprint("…")
	}
}

// Jobs prints scheduled jobs
func Jobs(w io.Writer, jobs []*db.ScheduledJob) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "no scheduled jobs")
		return
	}
	for _, j := range jobs {
		state := color.New(color.FgGreen).Sprint("enabled")
		if !j.Enabled {
			state = color.New(color.Faint).Sprint("disabled")
		}
		fmt.Fprintf(w, "%-4d %-16s %-14s %s → %s [%s]\n", j.ID, j.Name, j.CronExpression, j.Source, j.Destination, state)

		var details []string
		if j.DeleteAfter {
			details = append(details, "delete after")
		}
		if j.Sudo {
			details = append(details, "remote sudo")
		}
		if j.LastRunAt != nil {
			details = append(details, "last "+humanize.Time(*j.LastRunAt))
		}
		if j.NextRunAt != nil && j.Enabled {
			details = append(details, "next "+humanize.Time(*j.NextRunAt))
		}
		if len(details) > 0 {
			fmt.Fprintf(w, "%*s%s\n", indent+3, "", color.New(color.Faint).Sprint(strings.Join(details, " · ")))
		}
	}
}
