// Package storage records scrub runs for auditing. A run carries counts and
// categories only; matched values and scrubbed text are never stored.
package storage

import (
	"fmt"
	"maps"
	"time"

	"github.com/faheem-arif/pii-scrubber/pkg/scrub"
)

// Audit drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Run sources.
const (
	SourceAPI = "api"
	SourceCLI = "cli"
)

// Run is the audit record of one scrub invocation.
type Run struct {
	ID            string         `json:"run_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Source        string         `json:"source"`
	Mode          string         `json:"mode"`
	InputBytes    int            `json:"input_bytes"`
	TotalFindings int            `json:"total_findings"`
	ByType        map[string]int `json:"by_type"`
	LimitHit      bool           `json:"limit_hit"`
	DurationMS    float64        `json:"duration_ms"`
}

// NewRun builds a run record from a scrub result.
func NewRun(id, source string, inputBytes int, result *scrub.Result, duration time.Duration) *Run {
	return &Run{
		ID:            id,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Mode:          string(result.Mode),
		InputBytes:    inputBytes,
		TotalFindings: result.Report.TotalFindings,
		ByType:        maps.Clone(result.Report.ByType),
		LimitHit:      result.Report.LimitHit(),
		DurationMS:    float64(duration.Microseconds()) / 1000,
	}
}

// Stats aggregates every stored run.
type Stats struct {
	TotalRuns     int64            `json:"total_runs"`
	RunsToday     int64            `json:"runs_today"`
	TotalFindings int64            `json:"total_findings"`
	LimitHits     int64            `json:"limit_hits"`
	ByType        map[string]int64 `json:"by_type"`
}

// Store defines the interface for run storage.
type Store interface {
	// Save stores a run.
	Save(run *Run) error

	// Query retrieves runs matching the given criteria, newest first.
	Query(opts QueryOptions) ([]Run, error)

	// Stats aggregates all stored runs.
	Stats() (Stats, error)

	// Close closes the storage connection.
	Close() error
}

// QueryOptions specifies criteria for querying runs.
type QueryOptions struct {
	Limit       int
	Offset      int
	Since       *time.Time
	Until       *time.Time
	Mode        string
	Source      string
	MinFindings int
}

// Open returns the store for the configured driver.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown audit driver: %s", driver)
	}
}

func startOfDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
