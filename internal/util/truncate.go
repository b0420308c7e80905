package util

import "unicode/utf8"

// TruncatedSuffix marks a string cut by Truncate.
const TruncatedSuffix = "...[truncated]"

// Truncate cuts s to at most maxLen bytes, backing up to a rune boundary,
// and appends TruncatedSuffix. Strings within the limit are returned
// unchanged.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncatedSuffix
}
