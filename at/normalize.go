package at

import "strings"

// Normalize makes sure a single command carries the AT prefix.
//
// The prefix check is case-insensitive and the body keeps its case. Extended
// commands (+, ^, % or &) get the prefix glued on ("+CSQ" becomes "AT+CSQ"),
// anything else is separated by a space ("csq" becomes "AT csq"). Blank input
// returns "". Normalize is idempotent.
func Normalize(segment string) string {
	s := strings.TrimSpace(segment)
	if s == "" {
		return ""
	}

	if strings.HasPrefix(strings.ToUpper(s), Prefix) {
		return s
	}

	if strings.ContainsRune(extended, rune(s[0])) {
		return Prefix + s
	}

	return Prefix + " " + s
}
