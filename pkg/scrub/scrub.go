// Package scrub is the scrubbing engine: it runs every detector over a text,
// resolves the candidates and rewrites the text according to the chosen mode.
//
// The engine is a pure computation. It performs no I/O, holds no state between
// calls, and is safe to call from multiple goroutines.
package scrub

import (
	"fmt"
	"time"

	"github.com/faheem-arif/pii-scrubber/pkg/redact"
	"github.com/faheem-arif/pii-scrubber/pkg/scanners"
)

// Mode selects the transformation applied to each finding.
type Mode = redact.Mode

// Transformation modes.
const (
	ModeRedact   = redact.ModeRedact
	ModeTokenMap = redact.ModeTokenMap
	ModeHash     = redact.ModeHash
)

// Configuration errors. A failing call returns no partial result.
var (
	ErrMissingHashSalt = redact.ErrMissingHashSalt
	ErrInvalidMode     = redact.ErrInvalidMode
)

// Options configures a single invocation.
type Options struct {
	Mode Mode `json:"mode" yaml:"mode"`

	// KeepLast appends the last N characters of each value to its replacement.
	// Clamped to [0, 64].
	KeepLast int `json:"keepLast,omitempty" yaml:"keep_last"`

	Aggressive bool `json:"aggressive,omitempty" yaml:"aggressive"`

	// HashSalt is required in hash mode.
	HashSalt string `json:"hashSalt,omitempty" yaml:"hash_salt"`

	// MaxMatches caps the candidate count. Zero or less selects the size-based default.
	MaxMatches int `json:"maxMatches,omitempty" yaml:"max_matches"`
}

// DefaultOptions returns redact mode with default thresholds.
func DefaultOptions() Options {
	return Options{Mode: ModeRedact}
}

// Validate checks the options without scrubbing anything.
func (o Options) Validate() error {
	mode, err := redact.ParseMode(string(o.Mode))
	if err != nil {
		return err
	}
	if mode == ModeHash && o.HashSalt == "" {
		return ErrMissingHashSalt
	}
	return nil
}

// Engine wires the detector registry to the replacement builder.
type Engine struct {
	// Scanners is the ordered detector registry.
	Scanners []scanners.Scanner

	// Now stamps token-map mapping records. Defaults to time.Now.
	Now func() time.Time
}

// NewEngine creates an engine with the default detector registry.
func NewEngine() *Engine {
	return &Engine{
		Scanners: scanners.DefaultScanners(),
		Now:      time.Now,
	}
}

var defaultEngine = NewEngine()

// Scrub runs the default engine.
func Scrub(text string, opts Options) (*Result, error) {
	return defaultEngine.Scrub(text, opts)
}

// Scrub detects sensitive values in text and replaces them.
func (e *Engine) Scrub(text string, opts Options) (*Result, error) {
	mode, err := redact.ParseMode(string(opts.Mode))
	if err != nil {
		return nil, fmt.Errorf("scrub: %w", err)
	}

	var state *redact.TokenState
	if mode == ModeTokenMap {
		state = redact.NewTokenState(e.now())
	}
	redactor, err := redact.NewRedactor(mode, opts.KeepLast, opts.HashSalt, state)
	if err != nil {
		return nil, fmt.Errorf("scrub: %w", err)
	}

	maxMatches := scanners.EffectiveMaxMatches(len(text), opts.MaxMatches)
	candidates, hitLimit := scanners.Collect(text, e.Scanners, maxMatches, opts.Aggressive)
	resolved := scanners.Resolve(scanners.FilterByConfidence(candidates, opts.Aggressive))

	redacted := redactor.Redact(text, resolved)

	result := &Result{
		Mode:         mode,
		ScrubbedText: redacted.Redacted,
		Report:       newReport(resolved, hitLimit, maxMatches),
	}
	if state != nil {
		result.MappingRecords = append([]redact.MappingRecord{}, state.Records()...)
	}
	return result, nil
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
