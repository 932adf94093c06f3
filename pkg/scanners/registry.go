package scanners

import (
	"math"
	"slices"
)

// Match cap defaults.
const (
	DefaultMaxMatches = 5000
	MaxMatchesCeiling = 1_000_000
)

// DefaultScanners returns the fixed, ordered detector registry.
// Order only affects attribution; overlap resolution sees all candidates together.
func DefaultScanners() []Scanner {
	return []Scanner{
		NewPrivateKeyScanner(),
		NewJWTScanner(),
		NewGitHubTokenScanner(),
		NewGitLabTokenScanner(),
		NewAWSAccessKeyScanner(),
		NewGoogleAPIKeyScanner(),
		NewAWSSecretKeyScanner(),
		NewAWSSessionTokenScanner(),
		NewSlackWebhookScanner(),
		NewDiscordWebhookScanner(),
		NewURLBasicAuthScanner(),
		NewEmailScanner(),
		NewIPv4Scanner(),
		NewIPv6Scanner(),
		NewUUIDScanner(),
		NewPasswordScanner(),
		NewCookieScanner(),
		NewGenericSecretScanner(),
	}
}

// EffectiveMaxMatches computes the candidate cap for a text of the given length.
// A requested value of zero or less means "not provided".
func EffectiveMaxMatches(textLength, requested int) int {
	limit := requested
	if limit <= 0 {
		sizeBased := int(math.Ceil(float64(textLength) / 20))
		limit = max(DefaultMaxMatches, sizeBased)
	}
	return Clamp(limit, 1, MaxMatchesCeiling)
}

// Collect runs every scanner in order and combines their candidates. Once
// maxMatches candidates are collected it stops early and reports hitLimit.
func Collect(input string, scanners []Scanner, maxMatches int, aggressive bool) (findings []Finding, hitLimit bool) {
	for _, s := range scanners {
		remaining := maxMatches - len(findings)
		found := s.Scan(input, Options{Aggressive: aggressive, Limit: remaining})
		if len(found) > remaining {
			found = found[:remaining]
		}
		findings = append(findings, found...)
		if len(findings) >= maxMatches {
			return findings, true
		}
	}
	return findings, false
}

// FilterByConfidence keeps high-confidence candidates, plus medium ones in aggressive mode.
func FilterByConfidence(findings []Finding, aggressive bool) []Finding {
	kept := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.Confidence == ConfidenceHigh || (aggressive && f.Confidence == ConfidenceMedium) {
			kept = append(kept, f)
		}
	}
	return kept
}

// compareCandidates orders by severity desc, span length desc, start asc.
func compareCandidates(a, b Finding) int {
	if a.Severity != b.Severity {
		return b.Severity - a.Severity
	}
	if a.Len() != b.Len() {
		return b.Len() - a.Len()
	}
	return a.Start - b.Start
}

// Resolve selects a maximal non-overlapping subset of candidates, preferring the
// most severe, then the longest, then the earliest. The result is sorted by start.
func Resolve(candidates []Finding) []Finding {
	ordered := slices.Clone(candidates)
	slices.SortStableFunc(ordered, compareCandidates)

	// selected stays sorted by start; disjoint spans are then also sorted by end.
	selected := make([]Finding, 0, len(ordered))
	for _, c := range ordered {
		i, _ := slices.BinarySearchFunc(selected, c.End, func(f Finding, end int) int {
			if f.Start < end {
				return -1
			}
			return 1
		})
		if i > 0 && selected[i-1].End > c.Start {
			continue
		}
		selected = slices.Insert(selected, i, c)
	}

	return selected
}
