// Package utils provides shared helpers for logging, vector math, and text.
package utils

// Truncate returns s cut to at most maxLen runes, with "..." appended if it was cut.
// If maxLen is 0 or negative, s is returned unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
