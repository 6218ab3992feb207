package rsync

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Scenario(t *testing.T) {
	input := "sending incremental file list\n" +
		"Movie Title (2023)/\n" +
		"Another Movie (2024).mp4\n" +
		"rsync: some error cannot stat\n" +
		"sent 500 bytes  received 90 bytes  1000.00 bytes/sec\n"

	got := Parse(input)

	assert.Equal(t, []string{"Movie Title (2023)", "Another Movie (2024).mp4"}, got.Paths())
	assert.Equal(t, []string{"rsync: some error cannot stat"}, got.Lines())
}

func TestParse_EmptyFileList(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"marker then footer", "sending incremental file list\nsent 12 bytes  received 8 bytes  40.00 bytes/sec\n"},
		{"marker, blanks, footer", "sending incremental file list\n\n   \n\ntotal size is 0  speedup is 0.00\n"},
		{"no marker at all", "Movie (2020)/\nfile.mkv\nsent 1 bytes\n"},
		{"only banner noise", "building file list ... done\nopening connection\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			assert.True(t, got.Empty(), "expected no outcomes, got %+v", got)
		})
	}
}

func TestParse_ProgressLinesIgnored(t *testing.T) {
	lines := []string{
		"   1.66G  99%   15.44MB/s    0:00:00",
		"    32.77K   0%    0.00kB/s    0:00:00",
		"  1.2G 100%   50.00MB/s    0:00:23 (xfr#1, to-chk=0/2)",
		"          1,234,567  42%  120.31MB/s    0:00:01",
		"  512 100%  0.00kB/s  0:00:00 (xfr#3, ir-chk=1003/1010)",
	}

	for _, line := range lines {
		t.Run(strings.TrimSpace(line), func(t *testing.T) {
			got := Parse("sending incremental file list\n" + line + "\nsent 1 bytes  received 1 bytes\n")
			assert.True(t, got.Empty(), "progress line produced %+v", got)
		})
	}
}

func TestParse_DirectoryAndStatSuffixed(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"directory", "Movie Title (2023)/", "Movie Title (2023)"},
		{"nested directory", "Shows/Season 01/", "Shows/Season 01"},
		{"stat suffixed", "Another Movie (2024).mp4    1.2G  100%   50MB/s    0:00:05 (xfr#1, to-chk=0/2)", "Another Movie (2024).mp4"},
		{"stat suffixed with digits in name", "Movie 2 1.2G 100% 10MB/s 0:00:01", "Movie 2"},
		{"bare file", "Another Movie (2024).mp4", "Another Movie (2024).mp4"},
		{"bare file starting with a year", "1917 (2019).mkv", "1917 (2019).mkv"},
		{"bare nested file", "Movie Title (2023)/Movie Title (2023).srt", "Movie Title (2023)/Movie Title (2023).srt"},
		{"bare file with percent", "50% Off (2011).mkv", "50% Off (2011).mkv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse("sending incremental file list\n" + tt.line + "\n")
			require.Len(t, got.Successes, 1)
			assert.Equal(t, tt.want, got.Successes[0].RelativePath)
			assert.Empty(t, got.Failures)
		})
	}
}

func TestParse_ErrorLines(t *testing.T) {
	lines := []string{
		`rsync: [sender] send_files failed to open "/src/a.mkv": Permission denied (13)`,
		`rsync: link_stat "/src/missing" failed: No such file or directory (2)`,
		`cannot delete non-empty directory: Old`,
		`ERROR: cannot write file`,
		`file has vanished: "/src/tmp.part" failed`,
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			got := Parse("sending incremental file list\n" + line + "\n")
			assert.Empty(t, got.Successes)
			assert.Equal(t, []string{line}, got.Lines())
		})
	}
}

func TestParse_ErrorLineKeptVerbatim(t *testing.T) {
	got := Parse("sending incremental file list\n  rsync: indented cannot stat\t\n")
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "  rsync: indented cannot stat\t", got.Failures[0].RawLine)
}

func TestParse_IgnoredLines(t *testing.T) {
	lines := []string{
		"./",
		"/",
		"created directory /mnt/media/Movies",
		`skipping non-regular file "link"`,
		"deleting old.mkv",
		"100% Wolf (2020).mkv",
		"1.2G leftover",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			got := Parse("sending incremental file list\n" + line + "\n")
			assert.True(t, got.Empty(), "line %q produced %+v", line, got)
		})
	}
}

func TestParse_FooterStopsClassification(t *testing.T) {
	tests := []struct {
		name   string
		footer string
	}{
		{"sent bytes", "sent 12345 bytes  received 35 bytes  24760.00 bytes/sec"},
		{"sent human readable", "sent 1.23K bytes  received 35 bytes  2.52K bytes/sec"},
		{"total size", "total size is 1.20G  speedup is 1.00"},
		{"speedup anywhere", "whatever speedup is 3.4 (DRY RUN)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := strings.Join([]string{
				"sending incremental file list",
				"before.mkv",
				tt.footer,
				"after.mkv",
				"After Dir/",
				"rsync: late error failed",
			}, "\n")

			got := Parse(input)
			assert.Equal(t, []string{"before.mkv"}, got.Paths())
			assert.Empty(t, got.Failures)
		})
	}
}

func TestParse_CarriageReturnProgress(t *testing.T) {
	input := "sending incremental file list\r\n" +
		"Big Movie (2021).mkv\n" +
		"     32.77K   0%    0.00kB/s    0:00:00\r" +
		"    812.25M  45%   80.12MB/s    0:00:12\r" +
		"      1.80G 100%   85.02MB/s    0:00:21 (xfr#1, to-chk=0/1)\n" +
		"\n" +
		"sent 1.80G bytes  received 35 bytes  83.72M bytes/sec\n" +
		"total size is 1.80G  speedup is 1.00\n"

	got := Parse(input)
	assert.Equal(t, []string{"Big Movie (2021).mkv"}, got.Paths())
	assert.Empty(t, got.Failures)
}

func TestParse_OrderIsPreserved(t *testing.T) {
	input := strings.Join([]string{
		"receiving incremental file list",
		"c.mkv",
		"rsync: first failed",
		"a/",
		"b.mkv  10.0M 100%  1.00MB/s  0:00:10 (xfr#2, to-chk=1/3)",
		"rsync: second failed",
	}, "\n")

	got := Parse(input)
	assert.Equal(t, []string{"c.mkv", "a", "b.mkv"}, got.Paths())
	assert.Equal(t, []string{"rsync: first failed", "rsync: second failed"}, got.Lines())
}

func TestParse_MalformedInputNeverPanics(t *testing.T) {
	inputs := []string{
		"\x00\x01\x02",
		"sending incremental file list\n\r\r\r\n\n",
		"sending incremental file list\n" + strings.Repeat("%", 4096),
		"sending incremental file list\n100%\n/\n//\n",
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() { Parse(in) })
	}
}

func TestRules_Order(t *testing.T) {
	var names []string
	for _, r := range rules {
		names = append(names, r.name)
	}
	assert.Equal(t, []string{"error", "progress", "notice", "directory", "bare-file", "stat-suffixed-file"}, names)
}

func TestRules_Individually(t *testing.T) {
	tests := []struct {
		name     string
		classify func(raw, trimmed string) (lineKind, string)
		line     string
		wantKind lineKind
		wantPath string
	}{
		{"error matches rsync prefix", classifyError, "rsync: whatever", kindFailure, ""},
		{"error matches word failed", classifyError, "send failed", kindFailure, ""},
		{"error skips Terror", classifyError, "Terror (2020).mkv", kindNone, ""},
		{"progress matches readout", classifyProgress, "   1.66G  99%   15.44MB/s    0:00:00", kindIgnore, ""},
		{"progress skips names", classifyProgress, "movie.mkv 1.2G 100% 1MB/s", kindNone, ""},
		{"directory strips slash", classifyDirectory, "Dir/", kindSuccess, "Dir"},
		{"directory ignores dot", classifyDirectory, "./", kindIgnore, ""},
		{"bare file rejects 100%", classifyBareFile, "x 1G 100%", kindNone, ""},
		{"bare file rejects size token", classifyBareFile, "1.2G something", kindNone, ""},
		{"stat suffixed strips stats", classifyStatSuffixed, "x.mkv 1G 100% 1MB/s", kindSuccess, "x.mkv"},
		{"stat suffixed needs 100%", classifyStatSuffixed, "x.mkv 1G 99% 1MB/s", kindNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, path := tt.classify(tt.line, strings.TrimSpace(tt.line))
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}
