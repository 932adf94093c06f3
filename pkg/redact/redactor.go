// Package redact builds replacement text for resolved findings and applies it.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/faheem-arif/pii-scrubber/pkg/scanners"
)

// Mode selects how a finding is transformed.
type Mode string

// Transformation modes.
const (
	ModeRedact   Mode = "redact"
	ModeTokenMap Mode = "token-map"
	ModeHash     Mode = "hash"
)

// MaxKeepLast bounds how many trailing characters may be kept.
const MaxKeepLast = 64

// Configuration errors.
var (
	ErrMissingHashSalt = errors.New("hash mode requires a non-empty hash salt")
	ErrInvalidMode     = errors.New("invalid mode")
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeRedact, ModeTokenMap, ModeHash:
		return true
	}
	return false
}

// ParseMode parses a mode name. The empty string selects redact.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return ModeRedact, nil
	}
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q (want redact, token-map or hash)", ErrInvalidMode, s)
	}
	return m, nil
}

// Redactor produces replacement strings for one scrub run.
type Redactor struct {
	mode     Mode
	keepLast int
	salt     string
	state    *TokenState
}

// NewRedactor creates a Redactor. keepLast is clamped to [0, MaxKeepLast].
// state may be nil unless mode is token-map, in which case a fresh one is allocated.
func NewRedactor(mode Mode, keepLast int, salt string, state *TokenState) (*Redactor, error) {
	if mode == "" {
		mode = ModeRedact
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if mode == ModeHash && salt == "" {
		return nil, ErrMissingHashSalt
	}
	if mode == ModeTokenMap && state == nil {
		state = NewTokenState(time.Now())
	}

	return &Redactor{
		mode:     mode,
		keepLast: scanners.Clamp(keepLast, 0, MaxKeepLast),
		salt:     salt,
		state:    state,
	}, nil
}

// Mode returns the active mode.
func (r *Redactor) Mode() Mode {
	return r.mode
}

// State returns the token state, or nil outside token-map mode.
func (r *Redactor) State() *TokenState {
	return r.state
}

// Replacement returns the substitute text for one occurrence of original.
func (r *Redactor) Replacement(category, original string) string {
	upper := strings.ToUpper(category)

	var out string
	switch r.mode {
	case ModeHash:
		out = upper + "_SHA256:" + sha256Hex(r.salt+":"+original)
	case ModeTokenMap:
		out = "[[" + r.state.Token(category, original) + "]]"
	default:
		out = "[" + upper + "_REDACTED]"
	}

	if r.keepLast > 0 {
		out += ":" + lastRunes(original, r.keepLast)
	}
	return out
}

// Replacement is a span of the original text and the text that replaces it.
type Replacement struct {
	Category    string
	Start       int
	End         int
	Replacement string
}

// RedactionResult represents the result of a redaction operation.
type RedactionResult struct {
	Redacted     string
	Replacements []Replacement
	HasChanges   bool
}

// Redact replaces every finding in content. Findings must be non-overlapping
// and sorted by start, as produced by scanners.Resolve.
func (r *Redactor) Redact(content string, findings []scanners.Finding) *RedactionResult {
	result := &RedactionResult{
		Redacted:     content,
		Replacements: make([]Replacement, 0, len(findings)),
	}

	for _, f := range findings {
		result.Replacements = append(result.Replacements, Replacement{
			Category:    f.Category,
			Start:       f.Start,
			End:         f.End,
			Replacement: r.Replacement(f.Category, content[f.Start:f.End]),
		})
	}

	if len(result.Replacements) > 0 {
		result.Redacted = Apply(content, result.Replacements)
		result.HasChanges = true
	}
	return result
}

// Apply substitutes sorted, non-overlapping replacements into text. Offsets
// refer to the original text, so each one stays valid while output is built.
func Apply(text string, replacements []Replacement) string {
	var b strings.Builder
	b.Grow(len(text))

	prev := 0
	for _, rep := range replacements {
		b.WriteString(text[prev:rep.Start])
		b.WriteString(rep.Replacement)
		prev = rep.End
	}
	b.WriteString(text[prev:])

	return b.String()
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// lastRunes returns the last n characters of s.
func lastRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
