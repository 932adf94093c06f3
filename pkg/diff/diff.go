// Package diff compares original and scrubbed text for review.
//
// Diff output contains original values. Treat it like the unscrubbed input.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultLimit is the maximum number of rows BuildLineDiff returns.
const DefaultLimit = 2000

// Row is one line of a side-by-side comparison.
type Row struct {
	Line    int    `json:"line"`
	Left    string `json:"left"`
	Right   string `json:"right"`
	Changed bool   `json:"changed"`
}

// BuildLineDiff pairs lines by position. Missing lines on either side are empty.
// A limit of zero or less selects DefaultLimit.
func BuildLineDiff(left, right string, limit int) []Row {
	if limit <= 0 {
		limit = DefaultLimit
	}

	leftLines := strings.Split(left, "\n")
	rightLines := strings.Split(right, "\n")
	n := min(max(len(leftLines), len(rightLines)), limit)

	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		row := Row{Line: i + 1}
		if i < len(leftLines) {
			row.Left = leftLines[i]
		}
		if i < len(rightLines) {
			row.Right = rightLines[i]
		}
		row.Changed = row.Left != row.Right
		rows = append(rows, row)
	}
	return rows
}

// ChangedRows filters rows to those that differ.
func ChangedRows(rows []Row) []Row {
	var out []Row
	for _, r := range rows {
		if r.Changed {
			out = append(out, r)
		}
	}
	return out
}

// Result holds the result of a comparison.
type Result struct {
	LineCount1   int     `json:"lines1"`
	LineCount2   int     `json:"lines2"`
	ChangedLines int     `json:"changedLines"`
	Similarity   float64 `json:"similarity"`
	UnifiedDiff  string  `json:"diff,omitempty"`
}

// Compare computes a character diff between original and scrubbed text.
func Compare(original, scrubbed string) *Result {
	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(original, scrubbed, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	dist := dmp.DiffLevenshtein(diffs)
	maxLen := max(len(original), len(scrubbed))
	similarity := 1.0
	if maxLen > 0 {
		similarity = 1.0 - float64(dist)/float64(maxLen)
	}

	patches := dmp.PatchMake(original, diffs)

	changed := 0
	for _, r := range BuildLineDiff(original, scrubbed, -1) {
		if r.Changed {
			changed++
		}
	}

	return &Result{
		LineCount1:   countLines(original),
		LineCount2:   countLines(scrubbed),
		ChangedLines: changed,
		Similarity:   similarity,
		UnifiedDiff:  dmp.PatchToText(patches),
	}
}

// countLines counts the number of lines in a string.
// Empty strings return 0, trailing newlines don't count as extra lines.
func countLines(s string) int {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
