package fclones

// GroupOutput represents the JSON output from fclones group command
type GroupOutput struct {
	Header Header  `json:"header"`
	Groups []Group `json:"groups"`
}

// Header contains metadata about the scan
type Header struct {
	Version   string   `json:"version"`
	Timestamp string   `json:"timestamp"`
	Command   []string `json:"command"`
	BaseDir   string   `json:"base_dir"`
	Stats     Stats    `json:"stats"`
}

// Group represents a group of duplicate files
type Group struct {
	FileLen  int64    `json:"file_len"`
	FileHash string   `json:"file_hash"`
	Files    []string `json:"files"`
}

// Stats contains statistics from the scan
type Stats struct {
	GroupCount         int64 `json:"group_count"`
	TotalFileCount     int64 `json:"total_file_count"`
	TotalFileSize      int64 `json:"total_file_size"`
	RedundantFileCount int64 `json:"redundant_file_count"`
	RedundantFileSize  int64 `json:"redundant_file_size"`
	MissingFileCount   int64 `json:"missing_file_count"`
	MissingFileSize    int64 `json:"missing_file_size"`
}

// ScanOptions configures a group operation
type ScanOptions struct {
	Paths           []string
	MinSize         int64    // Minimum file size in bytes
	IncludePatterns []string // Glob patterns to include
	ExcludePatterns []string // Glob patterns to exclude
}

// RemoveOptions configures a remove operation
type RemoveOptions struct {
	DryRun bool
}

// DedupeResult summarises a group+remove pass over one directory
type DedupeResult struct {
	DryRun         bool
	Groups         int64
	RedundantFiles int64
	RedundantBytes int64
	Output         string // fclones remove output
}

// Progress represents scan progress
type Progress struct {
	Phase string // "scanning", "grouping", "hashing"

	// Progress bar info (from lines like "4/6: Grouping by prefix [...] 12027 / 60000")
	PhaseNum     int     // Current phase number (e.g., 4)
	PhaseTotal   int     // Total phases (e.g., 6)
	PhaseName    string  // Phase description (e.g., "Grouping by prefix")
	PhasePercent float64 // Progress within current phase (0-100), -1 when unknown
}
