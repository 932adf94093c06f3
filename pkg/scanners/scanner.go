// Package scanners implements the deterministic detectors used by the scrubber,
// together with candidate aggregation, confidence filtering and overlap resolution.
//
// All offsets are UTF-8 byte offsets into the scanned string. Spans are half-open.
package scanners

// Confidence is a detector's self-reported certainty.
type Confidence string

// Confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Finding represents a single candidate finding.
type Finding struct {
	Category   string     `json:"category"`   // e.g., "email", "aws_access_key"
	DetectorID string     `json:"detectorId"` // detector that produced the candidate
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence Confidence `json:"confidence"`
	Severity   int        `json:"severity"` // static per-category priority
}

// Len returns the span length in bytes.
func (f Finding) Len() int {
	return f.End - f.Start
}

// Overlaps reports whether two spans share at least one byte.
func (f Finding) Overlaps(o Finding) bool {
	return f.Start < o.End && f.End > o.Start
}

// Options is passed to every scanner.
type Options struct {
	// Aggressive lowers heuristic thresholds.
	Aggressive bool

	// Limit caps how many findings a scanner may return. Zero means no cap.
	Limit int
}

// Scanner is the interface that all detectors must implement.
type Scanner interface {
	// Name returns the detector ID.
	Name() string

	// Category returns the single category this detector reports.
	Category() string

	// Scan analyzes the input and returns candidate findings.
	Scan(input string, opts Options) []Finding
}

// Severity levels for categories.
const (
	SeverityCritical = 4
	SeverityHigh     = 3
	SeverityMedium   = 2
	SeverityLow      = 1
)

var severityByCategory = map[string]int{
	"private_key":       SeverityCritical,
	"jwt":               SeverityCritical,
	"aws_access_key":    SeverityCritical,
	"aws_secret_key":    SeverityCritical,
	"aws_session_token": SeverityCritical,
	"google_api_key":    SeverityCritical,
	"slack_webhook":     SeverityCritical,
	"discord_webhook":   SeverityCritical,
	"github_token":      SeverityCritical,
	"gitlab_token":      SeverityCritical,
	"url_basic_auth":    SeverityHigh,
	"password":          SeverityHigh,
	"cookie":            SeverityHigh,
	"generic_secret":    SeverityMedium,
	"email":             SeverityLow,
	"ipv4":              SeverityLow,
	"ipv6":              SeverityLow,
	"uuid":              SeverityLow,
}

// SeverityFor returns the static severity of a category. Unknown categories rank lowest.
func SeverityFor(category string) int {
	if s, ok := severityByCategory[category]; ok {
		return s
	}
	return SeverityLow
}

func newFinding(category, detector string, start, end int, confidence Confidence) Finding {
	return Finding{
		Category:   category,
		DetectorID: detector,
		Start:      start,
		End:        end,
		Confidence: confidence,
		Severity:   SeverityFor(category),
	}
}

// collector accumulates findings up to a limit.
type collector struct {
	limit    int
	findings []Finding
}

func newCollector(limit int) *collector {
	return &collector{limit: limit}
}

// add appends f and reports whether more findings may still be added.
func (c *collector) add(f Finding) bool {
	if c.limit > 0 && len(c.findings) >= c.limit {
		return false
	}
	c.findings = append(c.findings, f)
	return c.limit <= 0 || len(c.findings) < c.limit
}
