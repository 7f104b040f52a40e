// Package strings holds small normalizers for configuration-provided lists.
package strings

import (
	"strings"
)

// DedupeAndTrimLower trims and lowercases each element, then drops blanks
// and repeats. First occurrence order is preserved.
//
//	DedupeAndTrimLower([]string{" Image/PNG", "image/png", ""})
//	// []string{"image/png"}
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}

// DedupeAndTrim is DedupeAndTrimLower without case folding.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

func dedupe(values []string, normalize func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
