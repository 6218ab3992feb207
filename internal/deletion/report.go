package deletion

import "fmt"

// Kind is the filesystem kind of a deletion candidate
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Outcome is what happened to a deletion candidate
type Outcome string

const (
	// OutcomeDeleted means the path was removed
	OutcomeDeleted Outcome = "deleted"
	// OutcomeDeletionFailed means removal was attempted and returned an error
	OutcomeDeletionFailed Outcome = "deletion_failed"
	// OutcomeWithheld means the path was reported sent but was not removed:
	// a failure line names it, it is protected, or it escapes the base directory
	OutcomeWithheld Outcome = "withheld"
)

// Record describes one confirmed-sent path at deletion time
type Record struct {
	Path    string // Relative to the base directory
	Kind    Kind   // Empty when the path escapes the base directory
	Outcome Outcome
	Reason  string // Error text or withholding reason
	Bytes   int64  // Size on disk before removal
}

// Report is the immutable result of one deletion pass
type Report struct {
	BaseDir                string
	Deleted                []Record
	KeptDueToFailure       []string
	KeptDueToDeletionError []Record
	Withheld               []Record
}

// Summary holds the counts shown to the user
type Summary struct {
	Deleted        int
	Kept           int
	Failures       int
	DeletionErrors int
	Withheld       int
	BytesFreed     int64
}

// Summary computes the counts for the report. Kept covers every outcome
// that left data in place.
func (r *Report) Summary() Summary {
	s := Summary{
		Deleted:        len(r.Deleted),
		Failures:       len(r.KeptDueToFailure),
		DeletionErrors: len(r.KeptDueToDeletionError),
		Withheld:       len(r.Withheld),
	}
	s.Kept = s.Failures + s.DeletionErrors + s.Withheld
	for _, rec := range r.Deleted {
		s.BytesFreed += rec.Bytes
	}
	return s
}

// String renders the headline count, e.g. "2 deleted, 1 kept"
func (s Summary) String() string {
	return fmt.Sprintf("%d deleted, %d kept", s.Deleted, s.Kept)
}

// Records returns every record in the report in a stable order:
// deleted, deletion errors, then withheld.
func (r *Report) Records() []Record {
	all := make([]Record, 0, len(r.Deleted)+len(r.KeptDueToDeletionError)+len(r.Withheld))
	all = append(all, r.Deleted...)
	all = append(all, r.KeptDueToDeletionError...)
	return append(all, r.Withheld...)
}
