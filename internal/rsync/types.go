package rsync

// Success is a path, relative to the transfer's source root, that rsync
// reported as fully sent.
type Success struct {
	RelativePath string
}

// Failure is a diagnostic line reporting a transfer error. The path is not
// always extractable so the line is kept verbatim.
type Failure struct {
	RawLine string
}

// ParseResult holds the classified outcomes of one transfer, each in the
// order they appeared in the output.
type ParseResult struct {
	Successes []Success
	Failures  []Failure
}

// Empty reports whether no outcome was classified.
func (r ParseResult) Empty() bool {
	return len(r.Successes) == 0 && len(r.Failures) == 0
}

// Paths returns the relative paths of all successes.
func (r ParseResult) Paths() []string {
	paths := make([]string, 0, len(r.Successes))
	for _, s := range r.Successes {
		paths = append(paths, s.RelativePath)
	}
	return paths
}

// Lines returns the raw lines of all failures.
func (r ParseResult) Lines() []string {
	lines := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		lines = append(lines, f.RawLine)
	}
	return lines
}

// Direction is the transfer direction relative to the local machine
type Direction string

const (
	// DirectionPush sends a local tree to a remote target
	DirectionPush Direction = "push"
	// DirectionPull fetches a remote tree into a local directory
	DirectionPull Direction = "pull"
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d == DirectionPush || d == DirectionPull
}

// TransferOptions configures an rsync invocation
type TransferOptions struct {
	DryRun        bool
	UseRemoteSudo bool // Run the remote rsync through sudo
}

// TransferStatus is the outcome of a finished rsync process
type TransferStatus struct {
	ExitCode int
}

// OK reports whether rsync exited successfully
func (s TransferStatus) OK() bool {
	return s.ExitCode == 0
}
