package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/lyallcooper/shuttle/internal/db"
	"github.com/lyallcooper/shuttle/internal/deletion"
	"github.com/lyallcooper/shuttle/internal/fclones"
	"github.com/lyallcooper/shuttle/internal/rsync"
	"github.com/lyallcooper/shuttle/internal/transfer"
)

func init() {
	color.NoColor = true
}

func TestSummary(t *testing.T) {
	report := &deletion.Report{
		Deleted: []deletion.Record{
			{Path: "a.mkv", Kind: deletion.KindFile, Outcome: deletion.OutcomeDeleted, Bytes: 1500},
			{Path: "Season 1", Kind: deletion.KindDirectory, Outcome: deletion.OutcomeDeleted, Bytes: 500},
		},
		KeptDueToFailure: []string{`rsync: send_files failed to open "broken.mkv": Permission denied (13)`},
		KeptDueToDeletionError: []deletion.Record{
			{Path: "locked.mkv", Kind: deletion.KindFile, Outcome: deletion.OutcomeDeletionFailed, Reason: "permission denied"},
		},
	}

	var buf bytes.Buffer
	Summary(&buf, report)
	out := buf.String()

	for _, want := range []string{
		"2 deleted, 2 kept (2.0 kB freed)",
		"✓ a.mkv",
		"1.5 kB",
		"✓ Season 1/",
		"✗ rsync: send_files failed",
		"! locked.mkv",
		"permission denied",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestSummary_EmptyReportStillPrintsHeadline(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, &deletion.Report{})

	if got := strings.TrimSpace(buf.String()); got != "0 deleted, 0 kept" {
		t.Errorf("summary = %q, want headline only", got)
	}
}

func TestLegend(t *testing.T) {
	var buf bytes.Buffer
	Legend(&buf)

	for _, mark := range []string{"✓", "✗", "!", "•"} {
		if !strings.Contains(buf.String(), mark) {
			t.Errorf("legend missing %q", mark)
		}
	}
}

func TestResult(t *testing.T) {
	tests := []struct {
		name   string
		result *transfer.Result
		want   []string
	}{
		{
			name:   "detached",
			result: &transfer.Result{Status: transfer.StatusDetached, PID: 77, LogPath: "/logs/t.log"},
			want:   []string{"background (pid 77)", "/logs/t.log"},
		},
		{
			name: "failed",
			result: &transfer.Result{
				Status:   transfer.StatusFailed,
				ExitCode: 23,
				Parsed:   rsync.ParseResult{Failures: []rsync.Failure{{RawLine: "rsync error: some files could not be transferred"}}},
			},
			want: []string{"exit 23", "nothing was deleted", "rsync error: some files"},
		},
		{
			name: "completed with report",
			result: &transfer.Result{
				Status: transfer.StatusCompleted,
				Parsed: rsync.ParseResult{Successes: []rsync.Success{{RelativePath: "a"}}},
				Report: &deletion.Report{Deleted: []deletion.Record{{Path: "a", Kind: deletion.KindFile, Bytes: 1}}},
			},
			want: []string{"1 sent, 0 failed", "1 deleted, 0 kept"},
		},
		{
			name: "missing artifact",
			result: &transfer.Result{
				Status:      transfer.StatusCompleted,
				ArtifactErr: transfer.ErrMissingOutputArtifact,
			},
			want: []string{"transfer output artifact missing; nothing was deleted"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Result(&buf, tt.result)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		name   string
		result *fclones.DedupeResult
		want   string
	}{
		{"none", &fclones.DedupeResult{}, "no duplicates found"},
		{"dry run", &fclones.DedupeResult{DryRun: true, Groups: 2, RedundantFiles: 1200, RedundantBytes: 3000000}, "2 duplicate groups: would remove 1,200 files (3.0 MB)"},
		{"removed", &fclones.DedupeResult{Groups: 1, RedundantFiles: 1, RedundantBytes: 10}, "removed 1 files (10 B)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Dedupe(&buf, tt.result)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	started := time.Now().Add(-2 * time.Hour)
	completed := started.Add(90 * time.Second)
	msg := "rsync exited with status 23"

	runs := []*db.TransferRun{
		{
			ID: 2, Direction: "push", Source: "/m/", Destination: "nas:/m/",
			Status: db.TransferRunStatusCompleted, DeleteAfter: true,
			StartedAt: started, CompletedAt: &completed, Deleted: 3, Kept: 1, BytesFreed: 2048,
		},
		{
			ID: 1, Direction: "pull", Source: "nas:/m/", Destination: "/m/",
			Status: db.TransferRunStatusFailed, StartedAt: started, ErrorMessage: &msg,
		},
	}

	var buf bytes.Buffer
	History(&buf, runs)
	out := buf.String()

	for _, want := range []string{"✓ 2", "push", "/m/ → nas:/m/", "2 hours ago", "took 1m30s", "3 deleted, 1 kept, 2.0 kB freed", "✗ 1", msg} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	History(&buf, nil)
	if !strings.Contains(buf.String(), "no transfers recorded") {
		t.Errorf("empty history = %q", buf.String())
	}
}

func TestRecords(t *testing.T) {
	var buf bytes.Buffer
	Records(&buf, []*db.DeletionRecord{
		{Path: "a.mkv", Outcome: string(deletion.OutcomeDeleted)},
		{Path: "b.mkv", Outcome: string(deletion.OutcomeDeletionFailed), Reason: "busy"},
		{Path: "c.nfo", Outcome: string(deletion.OutcomeWithheld), Reason: "protected by *.nfo"},
	}, []string{"rsync error: x"})

	out := buf.String()
	for _, want := range []string{"✓ a.mkv", "! b.mkv", "busy", "• c.nfo", "✗ rsync error: x"} {
		if !strings.Contains(out, want) {
			t.Errorf("records missing %q:\n%s", want, out)
		}
	}
}

func TestJobs(t *testing.T) {
	last := time.Now().Add(-time.Hour)
	jobs := []*db.ScheduledJob{
		{ID: 1, Name: "nightly", CronExpression: "0 3 * * *", Source: "/m/", Destination: "nas:/m/", Enabled: true, DeleteAfter: true, LastRunAt: &last},
		{ID: 2, Name: "weekly", CronExpression: "@weekly", Source: "/x", Destination: "nas:/x", Enabled: false},
	}

	var buf bytes.Buffer
	Jobs(&buf, jobs)
	out := buf.String()

	for _, want := range []string{"nightly", "0 3 * * *", "[enabled]", "delete after", "last 1 hour ago", "weekly", "[disabled]"} {
		if !strings.Contains(out, want) {
			t.Errorf("jobs missing %q:\n%s", want, out)
		}
	}
}
