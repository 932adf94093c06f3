package scanners

import (
	"regexp"
	"strconv"
	"strings"
)

// NewEmailScanner detects email addresses.
func NewEmailScanner() Scanner {
	return &patternScanner{
		id:       "email",
		category: "email",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		},
		boundary: isEmailChar,
	}
}

// NewIPv4Scanner detects dotted-quad IPv4 addresses with numerically valid octets.
func NewIPv4Scanner() Scanner {
	return &patternScanner{
		id:       "ipv4",
		category: "ipv4",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`[0-9]{1,3}(?:\.[0-9]{1,3}){3}`),
		},
		boundary: isDigitOrDot,
		validate: IsValidIPv4,
	}
}

// NewUUIDScanner detects canonical RFC 4122 / RFC 9562 UUIDs.
func NewUUIDScanner() Scanner {
	return &patternScanner{
		id:       "uuid",
		category: "uuid",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-8][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}`),
		},
		boundary: isAlnum,
	}
}

// ipv6Scanner detects IPv6 addresses in full or compressed notation.
type ipv6Scanner struct {
	pattern *regexp.Regexp
}

// NewIPv6Scanner creates the IPv6 detector.
func NewIPv6Scanner() Scanner {
	return &ipv6Scanner{
		pattern: regexp.MustCompile(`[0-9A-Fa-f:]{2,}`),
	}
}

func (s *ipv6Scanner) Name() string     { return "ipv6" }
func (s *ipv6Scanner) Category() string { return "ipv6" }

func (s *ipv6Scanner) Scan(input string, opts Options) []Finding {
	c := newCollector(opts.Limit)

	for _, m := range s.pattern.FindAllStringIndex(input, -1) {
		value := input[m[0]:m[1]]
		if len(value) < 6 || !strings.Contains(value, ":") {
			continue
		}
		if !HasBoundary(input, m[0], m[1], isHexOrColon) {
			continue
		}
		// A trailing dot means the address continues in IPv4 notation.
		if m[1] < len(input) && input[m[1]] == '.' {
			value += "."
		}
		if !IsValidIPv6(value) {
			continue
		}
		if !c.add(newFinding(s.Category(), s.Name(), m[0], m[1], ConfidenceHigh)) {
			break
		}
	}

	return c.findings
}

// IsValidIPv4 checks for exactly four decimal octets in 0-255 without leading zeros.
func IsValidIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}

	for _, part := range parts {
		if len(part) == 0 || len(part) > 3 {
			return false
		}
		if len(part) > 1 && part[0] == '0' {
			return false
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}

	return true
}

// IsValidIPv6 checks colon-hex notation: at most one "::", eight groups when
// uncompressed, at most seven when compressed, and 1-4 hex digits per group.
// Embedded IPv4 tails are rejected.
func IsValidIPv6(s string) bool {
	if !strings.Contains(s, ":") || strings.Contains(s, ".") || strings.Contains(s, ":::") {
		return false
	}

	halves := strings.Split(s, "::")
	if len(halves) > 2 {
		return false
	}

	var groups []string
	for _, half := range halves {
		if half == "" {
			continue
		}
		groups = append(groups, strings.Split(half, ":")...)
	}

	if len(halves) == 1 && len(groups) != 8 {
		return false
	}
	if len(halves) == 2 && len(groups) > 7 {
		return false
	}

	for _, g := range groups {
		if len(g) < 1 || len(g) > 4 || !isHexString(g) {
			return false
		}
	}

	return true
}
