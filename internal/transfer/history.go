package transfer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lyallcooper/shuttle/internal/db"
	"github.com/lyallcooper/shuttle/internal/deletion"
)

// History failures are logged, never returned: a transfer that already ran
// must still report its outcome.

func (o *Orchestrator) recordStart(req Request) (int64, error) {
	if o.store == nil {
		return 0, nil
	}
	run, err := o.store.CreateTransferRun(&db.TransferRun{
		ScheduledJobID: req.ScheduledJobID,
		Direction:      string(req.Direction),
		Source:         req.Source,
		Destination:    req.Destination,
		DryRun:         req.Options.DryRun,
		Sudo:           req.Options.UseRemoteSudo,
		Background:     req.Options.RunInBackground,
		DeleteAfter:    req.DeletionRequested(),
		LogPath:        req.LogPath,
	})
	if err != nil {
		return 0, err
	}
	return run.ID, nil
}

func (o *Orchestrator) recordComplete(ctx context.Context, runID int64, res db.TransferRunResult) {
	if o.store == nil || runID == 0 {
		return
	}
	if err := o.store.CompleteTransferRun(runID, res); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("run_id", runID).Msg("failed to record transfer result")
	}
}

func (o *Orchestrator) recordFailure(ctx context.Context, runID int64, result *Result, cause error) {
	msg := cause.Error()
	res := db.TransferRunResult{Status: db.TransferRunStatusFailed, ErrorMessage: &msg}
	if result != nil {
		code := result.ExitCode
		res.ExitCode = &code
		res.Successes = len(result.Parsed.Successes)
		res.Failures = len(result.Parsed.Failures)
		o.recordLines(ctx, runID, nil, result.Parsed.Lines())
	}
	o.recordComplete(ctx, runID, res)
}

func (o *Orchestrator) recordResult(ctx context.Context, result *Result) {
	code := result.ExitCode
	res := db.TransferRunResult{
		Status:    db.TransferRunStatusCompleted,
		ExitCode:  &code,
		Successes: len(result.Parsed.Successes),
		Failures:  len(result.Parsed.Failures),
	}
	if result.ArtifactErr != nil {
		msg := result.ArtifactErr.Error()
		res.ErrorMessage = &msg
	}

	var records []db.DeletionRecord
	if result.Report != nil {
		s := result.Report.Summary()
		res.Deleted = s.Deleted
		res.Kept = s.Kept
		res.BytesFreed = s.BytesFreed
		records = toDBRecords(result.Report.Records())
	}

	o.recordLines(ctx, result.RunID, records, result.Parsed.Lines())
	o.recordComplete(ctx, result.RunID, res)
}

func (o *Orchestrator) recordLines(ctx context.Context, runID int64, records []db.DeletionRecord, failures []string) {
	if o.store == nil || runID == 0 || (len(records) == 0 && len(failures) == 0) {
		return
	}
	if err := o.store.AddDeletionRecords(runID, records, failures); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("run_id", runID).Msg("failed to record deletion records")
	}
}

func toDBRecords(records []deletion.Record) []db.DeletionRecord {
	out := make([]db.DeletionRecord, 0, len(records))
	for _, r := range records {
		out = append(out, db.DeletionRecord{
			Path:    r.Path,
			Kind:    string(r.Kind),
			Outcome: string(r.Outcome),
			Reason:  r.Reason,
			Bytes:   r.Bytes,
		})
	}
	return out
}
