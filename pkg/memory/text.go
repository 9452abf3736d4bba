package memory

import (
	"strings"
	"unicode/utf8"
)

// MaxContentBytes caps stored free text at 1MB. Truncation lands on a valid
// rune boundary so the full-text vector is never derived from a torn rune.
const MaxContentBytes = 1 << 20

// SanitizeContent normalizes free text before embedding and full-text
// derivation: strips NUL bytes, collapses whitespace runs to single spaces,
// trims, and truncates to MaxContentBytes.
func SanitizeContent(s string) string {
	return truncateOnBoundary(normalize(s), MaxContentBytes)
}

// SanitizeQuery applies the same normalization as SanitizeContent but never
// truncates; search queries are caller-bounded.
func SanitizeQuery(s string) string {
	return normalize(s)
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.Join(strings.Fields(s), " ")
}

func truncateOnBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
