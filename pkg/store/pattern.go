package store

import "strings"

// Wildcard is the multi-character wildcard marker used in query patterns.
const Wildcard = "%"

// Pattern derives a store pattern from free-text user input: every space
// becomes a wildcard and the whole string is bracketed by wildcards, so
// "foo bar" matches any text containing "foo", then anything, then "bar".
func Pattern(query string) string {
	return Wildcard + strings.ReplaceAll(query, " ", Wildcard) + Wildcard
}

// Match reports whether text matches a LIKE pattern case-insensitively.
// '%' matches any run of characters and '_' matches exactly one, which is
// what Postgres ILIKE ... ESCAPE '' does for the same pattern. There is no
// escape character: '\' matches itself.
func Match(pattern, text string) bool {
	p := []rune(strings.ToLower(pattern))
	s := []rune(strings.ToLower(text))

	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(p) && p[pi] == '%':
			star = pi
			mark = si
			pi++
		case pi < len(p) && (p[pi] == '_' || p[pi] == s[si]):
			pi++
			si++
		case star >= 0:
			// Let the last '%' swallow one more character and retry.
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}

	for pi < len(p) && p[pi] == '%' {
		pi++
	}
	return pi == len(p)
}
