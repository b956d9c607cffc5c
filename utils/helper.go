package utils

import (
	"strings"
	"time"
)

// TimestampUTC returns an RFC3339 UTC timestamp with a trailing Z,
// matching the format persisted in the JSON logs.
func TimestampUTC() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z07:00")
}

// NormalizeToken upper-cases and trims an identifier for case-insensitive
// comparison at matching boundaries.
func NormalizeToken(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// AppendUnique appends value to list when non-empty and not already present,
// preserving first-seen order.
func AppendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
