package utilities

import "strings"

// NormalizeMobile keeps only the digits of a typed mobile number, so
// "+91 98765-43210" and "919876543210" compare equal.
func NormalizeMobile(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MobileSuffix returns the last n digits of a normalized number. Numbers
// shorter than n are returned whole.
func MobileSuffix(normalized string, n int) string {
	if len(normalized) <= n {
		return normalized
	}
	return normalized[len(normalized)-n:]
}
