package scanners

import (
	"encoding/base64"
	"math"
	"strings"
	"unicode/utf8"
)

// ShannonEntropy calculates the Shannon entropy of a string over its code points.
func ShannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	total := 0
	for _, c := range s {
		freq[c]++
		total++
	}

	var entropy float64
	length := float64(total)
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// HasBoundary reports whether the span [start, end) is not directly adjacent to a
// byte that would have extended the match. allowed classifies such bytes.
func HasBoundary(text string, start, end int, allowed func(byte) bool) bool {
	if start > 0 && allowed(text[start-1]) {
		return false
	}
	if end < len(text) && allowed(text[end]) {
		return false
	}
	return true
}

// DecodeBase64URL decodes an unpadded or padded base64url string into UTF-8 text.
// It returns false when the input is not valid base64url or not valid UTF-8.
func DecodeBase64URL(s string) (string, bool) {
	s = strings.TrimRight(s, "=")
	if s == "" {
		return "", false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}

// Clamp limits v to the closed range [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Character classes used for boundary checks. All are ASCII, so checking the
// adjacent byte is exact even for multi-byte UTF-8 text.

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func isHex(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F'
}

func isEmailChar(b byte) bool {
	return isAlnum(b) || b == '_' || b == '%' || b == '+' || b == '-'
}

func isTokenChar(b byte) bool {
	return isAlnum(b) || b == '+' || b == '/' || b == '_' || b == '=' || b == '-'
}

func isHexOrColon(b byte) bool {
	return isHex(b) || b == ':'
}

func isDigitOrDot(b byte) bool {
	return b >= '0' && b <= '9' || b == '.'
}

func isKeyChar(b byte) bool {
	return isAlnum(b) || b == '_' || b == '-'
}

func isHexString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHex(s[i]) {
			return false
		}
	}
	return true
}
