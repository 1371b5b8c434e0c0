// Package units canonicalizes free-text unit labels so that rules and
// measurements spelled differently ("°C", " C ", "c") compare equal.
package units

import (
	"strings"
	"unicode"
)

// Normalize lower-cases raw, trims it and drops every rune that is not a
// letter or a number. An empty label normalizes to "".
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Equal reports whether two labels normalize to the same key.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
