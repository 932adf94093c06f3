package scanners

import (
	"regexp"
	"strings"
)

// GenericSecretConfig holds the tuned heuristics of the high-entropy secret detector.
type GenericSecretConfig struct {
	// Keywords mark nearby text or key names as secret-bearing.
	Keywords []string

	// DenylistKeys are key names whose values are never secrets (URLs, paths).
	// A key matches when it equals or ends with one of them.
	DenylistKeys []string

	MinLength            int
	MinEntropy           float64
	AggressiveMinLength  int
	AggressiveMinEntropy float64

	// Purely hexadecimal values shorter than this are dropped unless a keyword is present.
	ShortHexLength int

	// Keyword search window around the value, in bytes.
	WindowBefore int
	WindowAfter  int

	// MaxKeyLookback bounds the backward search for a key name on the current line.
	MaxKeyLookback int
}

// DefaultGenericSecretConfig returns the default heuristics.
func DefaultGenericSecretConfig() GenericSecretConfig {
	return GenericSecretConfig{
		Keywords: []string{
			"api_key", "apikey", "token", "secret", "password",
			"passwd", "pwd", "access_key", "auth", "bearer",
		},
		DenylistKeys:         []string{"url", "uri", "path", "endpoint", "href", "route", "host"},
		MinLength:            20,
		MinEntropy:           3.6,
		AggressiveMinLength:  16,
		AggressiveMinEntropy: 3.2,
		ShortHexLength:       32,
		WindowBefore:         64,
		WindowAfter:          32,
		MaxKeyLookback:       512,
	}
}

var (
	tokenRunPattern  = regexp.MustCompile(`[A-Za-z0-9+/_=-]{16,128}`)
	uuidShapePattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	keyAssignPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.-]*)["']?[ \t]*[:=]`)
)

// GenericSecretScanner detects high-entropy strings that look like credentials.
type GenericSecretScanner struct {
	config GenericSecretConfig
}

// NewGenericSecretScanner creates a generic secret detector with default heuristics.
func NewGenericSecretScanner() *GenericSecretScanner {
	return NewGenericSecretScannerWithConfig(DefaultGenericSecretConfig())
}

// NewGenericSecretScannerWithConfig creates a generic secret detector with custom heuristics.
func NewGenericSecretScannerWithConfig(config GenericSecretConfig) *GenericSecretScanner {
	return &GenericSecretScanner{config: config}
}

func (s *GenericSecretScanner) Name() string     { return "entropy_keyword" }
func (s *GenericSecretScanner) Category() string { return "generic_secret" }

// Scan analyzes the input for high-entropy secrets.
func (s *GenericSecretScanner) Scan(input string, opts Options) []Finding {
	c := newCollector(opts.Limit)

	for _, m := range tokenRunPattern.FindAllStringIndex(input, -1) {
		start, end := m[0], m[1]
		if !HasBoundary(input, start, end, isTokenChar) {
			continue
		}

		confidence, start, ok := s.classify(input, start, end, opts.Aggressive)
		if !ok {
			continue
		}
		if !c.add(newFinding(s.Category(), s.Name(), start, end, confidence)) {
			break
		}
	}

	return c.findings
}

// classify applies the heuristics to the run [start, end). It returns the
// confidence, the possibly adjusted start offset, and whether the run is a secret.
func (s *GenericSecretScanner) classify(input string, start, end int, aggressive bool) (Confidence, int, bool) {
	value := input[start:end]
	keyName := ""

	// key=value inside a single run: the key is context, the suffix is the value.
	if eq := strings.IndexByte(value, '='); eq > 0 {
		if prefix := strings.ToLower(value[:eq]); s.isSecretKey(prefix) {
			keyName = prefix
			start += eq + 1
			value = value[eq+1:]
		}
	}
	if value == "" {
		return ConfidenceLow, start, false
	}

	if uuidShapePattern.MatchString(value) {
		return ConfidenceLow, start, false
	}

	if keyName == "" {
		keyName = s.contextKey(input, start)
		if s.isDenylisted(keyName) {
			return ConfidenceLow, start, false
		}
	}

	hasKeyword := s.isSecretKey(keyName) || s.keywordNearby(input, start, end)

	minLength, minEntropy := s.config.MinLength, s.config.MinEntropy
	if aggressive {
		minLength, minEntropy = s.config.AggressiveMinLength, s.config.AggressiveMinEntropy
	}

	if len(value) < minLength || ShannonEntropy(value) < minEntropy {
		return ConfidenceLow, start, false
	}
	if !hasKeyword && !aggressive {
		return ConfidenceLow, start, false
	}
	if !hasKeyword && len(value) < s.config.ShortHexLength && isHexString(value) {
		return ConfidenceLow, start, false
	}

	if hasKeyword {
		return ConfidenceHigh, start, true
	}
	return ConfidenceMedium, start, true
}

// contextKey returns the lowercased name of the last key:/key= assignment
// between the start of the line and start. URL schemes are skipped.
func (s *GenericSecretScanner) contextKey(input string, start int) string {
	lineStart := strings.LastIndexByte(input[:start], '\n') + 1
	if s.config.MaxKeyLookback > 0 && start-lineStart > s.config.MaxKeyLookback {
		lineStart = start - s.config.MaxKeyLookback
	}
	prefix := input[lineStart:start]

	matches := keyAssignPattern.FindAllStringSubmatchIndex(prefix, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if strings.HasPrefix(prefix[m[1]:], "//") {
			continue
		}
		return strings.ToLower(prefix[m[2]:m[3]])
	}
	return ""
}

func (s *GenericSecretScanner) isSecretKey(key string) bool {
	if key == "" {
		return false
	}
	for _, kw := range s.config.Keywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

func (s *GenericSecretScanner) isDenylisted(key string) bool {
	if key == "" {
		return false
	}
	for _, deny := range s.config.DenylistKeys {
		if key == deny || strings.HasSuffix(key, deny) {
			return true
		}
	}
	return false
}

func (s *GenericSecretScanner) keywordNearby(input string, start, end int) bool {
	lo := Clamp(start-s.config.WindowBefore, 0, len(input))
	hi := Clamp(end+s.config.WindowAfter, 0, len(input))
	window := strings.ToLower(input[lo:hi])
	for _, kw := range s.config.Keywords {
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}
