package redact

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// FirstSeenLayout is ISO-8601 UTC with second precision.
const FirstSeenLayout = "2006-01-02T15:04:05Z"

// MappingRecord links a token back to the value it replaced.
// Records hold original values and must be protected like the input.
type MappingRecord struct {
	Token     string `json:"token"`
	Category  string `json:"category"`
	Original  string `json:"original"`
	SHA256    string `json:"sha256"`
	FirstSeen string `json:"firstSeen"`
}

type tokenKey struct {
	category string
	value    string
}

// TokenState is the per-run token table. It is not safe for concurrent use and
// must not be shared between runs.
type TokenState struct {
	counters  map[string]int
	tokens    map[tokenKey]string
	records   []MappingRecord
	firstSeen string
}

// NewTokenState creates an empty token table stamped with now.
func NewTokenState(now time.Time) *TokenState {
	return &TokenState{
		counters:  make(map[string]int),
		tokens:    make(map[tokenKey]string),
		firstSeen: now.UTC().Format(FirstSeenLayout),
	}
}

// Token returns the token for (category, value), allocating the next one for
// the category and recording a mapping the first time the pair is seen.
func (s *TokenState) Token(category, value string) string {
	key := tokenKey{category: category, value: value}
	if token, ok := s.tokens[key]; ok {
		return token
	}

	s.counters[category]++
	token := strings.ToUpper(category) + ":" + strconv.Itoa(s.counters[category])
	s.tokens[key] = token
	s.records = append(s.records, MappingRecord{
		Token:     token,
		Category:  category,
		Original:  value,
		SHA256:    sha256Hex(value),
		FirstSeen: s.firstSeen,
	})

	return token
}

// Records returns the mapping log in allocation order.
func (s *TokenState) Records() []MappingRecord {
	return s.records
}

// MarshalJSONL encodes records one JSON object per line, without a trailing newline.
func MarshalJSONL(records []MappingRecord) ([]byte, error) {
	var buf bytes.Buffer
	for i, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// ParseJSONL decodes a mapping log written by MarshalJSONL. Blank lines are skipped.
func ParseJSONL(data []byte) ([]MappingRecord, error) {
	var records []MappingRecord
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec MappingRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Restore reverses token-map output using its mapping log. keepLast must match
// the value used when scrubbing so that suffixed placeholders are recognized.
func Restore(scrubbed string, records []MappingRecord, keepLast int) string {
	if len(records) == 0 {
		return scrubbed
	}
	keepLast = min(max(keepLast, 0), MaxKeepLast)

	pairs := make([]string, 0, 2*len(records))
	for _, rec := range records {
		placeholder := "[[" + rec.Token + "]]"
		if keepLast > 0 {
			placeholder += ":" + lastRunes(rec.Original, keepLast)
		}
		pairs = append(pairs, placeholder, rec.Original)
	}

	return strings.NewReplacer(pairs...).Replace(scrubbed)
}
