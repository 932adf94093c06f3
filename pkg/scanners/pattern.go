package scanners

import "regexp"

// patternScanner is a detector driven by one or more regular expressions.
type patternScanner struct {
	id       string
	category string
	patterns []*regexp.Regexp

	// groups lists submatch indexes whose span becomes the finding; the first one
	// that participated in the match wins. Empty means the whole match.
	groups []int

	// boundary, when set, rejects spans touching a byte of the same class.
	boundary func(byte) bool

	// validate, when set, must accept the matched value.
	validate func(string) bool
}

func (s *patternScanner) Name() string {
	return s.id
}

func (s *patternScanner) Category() string {
	return s.category
}

func (s *patternScanner) Scan(input string, opts Options) []Finding {
	c := newCollector(opts.Limit)

	for _, re := range s.patterns {
		for _, m := range re.FindAllStringSubmatchIndex(input, -1) {
			start, end := s.span(m)
			if start < 0 || start >= end {
				continue
			}
			if s.boundary != nil && !HasBoundary(input, start, end, s.boundary) {
				continue
			}
			if s.validate != nil && !s.validate(input[start:end]) {
				continue
			}
			if !c.add(newFinding(s.category, s.id, start, end, ConfidenceHigh)) {
				return c.findings
			}
		}
	}

	return c.findings
}

func (s *patternScanner) span(m []int) (int, int) {
	if len(s.groups) == 0 {
		return m[0], m[1]
	}
	for _, g := range s.groups {
		if 2*g+1 < len(m) && m[2*g] >= 0 && m[2*g] < m[2*g+1] {
			return m[2*g], m[2*g+1]
		}
	}
	return -1, -1
}
