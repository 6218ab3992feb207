package rsync

import (
	"regexp"
	"strings"
)

// parseState tracks where in the rsync output the parser is.
type parseState int

const (
	stateBeforeList parseState = iota
	stateInList
	stateDone
)

// fileListMarkers are the banner lines rsync prints right before per-entry lines.
var fileListMarkers = map[string]bool{
	"sending incremental file list":   true,
	"receiving incremental file list": true,
	"sending file list":               true,
	"receiving file list":             true,
}

var (
	footerSentRe = regexp.MustCompile(`^sent\s+[\d.,]+[kKMGTPE]?\s+bytes`)

	errorWordRe = regexp.MustCompile(`(?i)\b(error|failed|cannot)\b`)

	// "   1.66G  99%   15.44MB/s    0:00:00 (xfr#1, to-chk=0/2)"
	progressRe = regexp.MustCompile(`^\s*[\d.,]+[kKMGTPE]?\s+\d{1,3}%\s+[\d.,]+[kKMGTPE]?B/s(\s+\d+:\d{2}:\d{2})?(\s+\((xfr|xfer)#\d+,\s*(ir|to)-chk=\d+/\d+\))?\s*$`)

	// A leading size token needs a unit so names like "1917 (2019).mkv" are still entries.
	sizeTokenRe = regexp.MustCompile(`^\d[\d.,]*[kKMGTPE](i?B)?(\s|$)`)

	statSuffixedRe = regexp.MustCompile(`^(.*\S)\s+\d[\d.,]*[kKMGTPE]?(i?B)?\s+100%`)
)

// noticePrefixes are informational rsync lines inside the file list that never name a sent entry.
var noticePrefixes = []string{
	"created directory ",
	"skipping non-regular file ",
	"skipping directory ",
	"deleting ",
	"delta-transmission ",
}

// lineKind is what a classification rule decided about one line.
type lineKind int

const (
	kindNone lineKind = iota
	kindFailure
	kindIgnore
	kindSuccess
)

// rule classifies a single trimmed, non-blank line. It returns kindNone when
// it does not apply, letting the next rule try. For kindSuccess the returned
// string is the relative path.
type rule struct {
	name     string
	classify func(raw, trimmed string) (lineKind, string)
}

// rules is evaluated in order; the first rule that applies wins.
var rules = []rule{
	{"error", classifyError},
	{"progress", classifyProgress},
	{"notice", classifyNotice},
	{"directory", classifyDirectory},
	{"bare-file", classifyBareFile},
	{"stat-suffixed-file", classifyStatSuffixed},
}

// Parse classifies rsync output into successes and failures. Lines before the
// file-list marker and after the transfer summary are ignored, as is anything
// that no rule recognises.
func Parse(output string) ParseResult {
	var result ParseResult
	state := stateBeforeList

	for _, line := range splitLines(output) {
		trimmed := strings.TrimSpace(line)

		switch state {
		case stateBeforeList:
			if fileListMarkers[trimmed] {
				state = stateInList
			}
			continue
		case stateDone:
			continue
		}

		if trimmed == "" {
			continue
		}
		if isFooter(trimmed) {
			state = stateDone
			continue
		}

		kind, path := classifyLine(line, trimmed)
		switch kind {
		case kindFailure:
			result.Failures = append(result.Failures, Failure{RawLine: line})
		case kindSuccess:
			result.Successes = append(result.Successes, Success{RelativePath: path})
		}
	}

	return result
}

// classifyLine runs the rule list against one line
func classifyLine(raw, trimmed string) (lineKind, string) {
	for _, r := range rules {
		if kind, path := r.classify(raw, trimmed); kind != kindNone {
			return kind, path
		}
	}
	return kindIgnore, ""
}

// splitLines splits on \n, \r\n and bare \r. rsync --progress redraws the
// current line with carriage returns, so each redraw becomes its own line.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
}

func isFooter(trimmed string) bool {
	if footerSentRe.MatchString(trimmed) {
		return true
	}
	if strings.HasPrefix(trimmed, "total size") {
		return true
	}
	return strings.Contains(trimmed, "speedup")
}

func classifyError(_, trimmed string) (lineKind, string) {
	if strings.HasPrefix(trimmed, "rsync:") || strings.HasPrefix(trimmed, "rsync error:") {
		return kindFailure, ""
	}
	if errorWordRe.MatchString(trimmed) {
		return kindFailure, ""
	}
	return kindNone, ""
}

func classifyProgress(raw, _ string) (lineKind, string) {
	if progressRe.MatchString(raw) {
		return kindIgnore, ""
	}
	return kindNone, ""
}

func classifyNotice(_, trimmed string) (lineKind, string) {
	for _, prefix := range noticePrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return kindIgnore, ""
		}
	}
	return kindNone, ""
}

func classifyDirectory(_, trimmed string) (lineKind, string) {
	if !strings.HasSuffix(trimmed, "/") {
		return kindNone, ""
	}
	path := strings.TrimRight(trimmed, "/")
	if path == "" || path == "." {
		return kindIgnore, ""
	}
	return kindSuccess, path
}

func classifyBareFile(_, trimmed string) (lineKind, string) {
	if strings.Contains(trimmed, "100%") || sizeTokenRe.MatchString(trimmed) {
		return kindNone, ""
	}
	return kindSuccess, trimmed
}

func classifyStatSuffixed(_, trimmed string) (lineKind, string) {
	m := statSuffixedRe.FindStringSubmatch(trimmed)
	if m == nil {
		return kindNone, ""
	}
	return kindSuccess, m[1]
}
