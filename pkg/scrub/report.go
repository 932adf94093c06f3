package scrub

import (
	"fmt"
	"maps"
	"slices"

	json "github.com/goccy/go-json"

	"github.com/faheem-arif/pii-scrubber/pkg/redact"
	"github.com/faheem-arif/pii-scrubber/pkg/scanners"
)

// Report summarizes a run. It carries offsets, categories and counts only,
// never the values that were replaced.
type Report struct {
	TotalFindings int                `json:"totalFindings"`
	ByType        map[string]int     `json:"byType"`
	Findings      []scanners.Finding `json:"findings"`
	Warnings      []string           `json:"warnings,omitempty"`
}

func newReport(findings []scanners.Finding, hitLimit bool, maxMatches int) Report {
	report := Report{
		TotalFindings: len(findings),
		ByType:        make(map[string]int),
		Findings:      findings,
	}
	if report.Findings == nil {
		report.Findings = []scanners.Finding{}
	}
	for _, f := range findings {
		report.ByType[f.Category]++
	}
	if hitLimit {
		report.Warnings = append(report.Warnings, CapWarning(maxMatches))
	}
	return report
}

// CapWarning is the report warning emitted when the candidate cap was reached.
func CapWarning(maxMatches int) string {
	return fmt.Sprintf("Match cap reached (%d). Output may be incomplete.", maxMatches)
}

// Categories returns the categories present in the report, sorted.
func (r Report) Categories() []string {
	return slices.Sorted(maps.Keys(r.ByType))
}

// LimitHit reports whether the candidate cap cut detection short.
func (r Report) LimitHit() bool {
	return len(r.Warnings) > 0
}

// JSON encodes the report as indented JSON.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Result is the output of one invocation.
type Result struct {
	Mode         Mode   `json:"mode"`
	ScrubbedText string `json:"scrubbedText"`
	Report       Report `json:"report"`

	// MappingRecords is set only in token-map mode. It contains original values.
	MappingRecords []redact.MappingRecord `json:"-"`
}

// HasMapping reports whether the result carries a reversible mapping log.
func (r *Result) HasMapping() bool {
	return r.Mode == ModeTokenMap
}

// MappingJSONL returns the mapping log, one JSON object per line.
// It is empty outside token-map mode.
func (r *Result) MappingJSONL() (string, error) {
	if !r.HasMapping() {
		return "", nil
	}
	data, err := redact.MarshalJSONL(r.MappingRecords)
	if err != nil {
		return "", fmt.Errorf("encode mapping: %w", err)
	}
	return string(data), nil
}
