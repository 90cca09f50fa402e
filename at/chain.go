package at

import "strings"

// SplitChain splits a user supplied chain of AT commands into the individual
// commands, in submission order.
//
// Commands are separated by ';', LF or CR. Separators inside double quotes do
// not split, and a backslash protects the character after it. Quotes and
// backslashes are kept verbatim in the returned commands: SplitChain only
// decides where to cut, it never rewrites the payload. Segments are trimmed and
// blank segments are dropped, so empty or separator-only input yields nil.
func SplitChain(raw string) []string {
	if raw == "" {
		return nil
	}

	var (
		parts    []string
		current  strings.Builder
		inQuotes bool
		escaped  bool
	)

	flush := func() {
		if segment := strings.TrimSpace(current.String()); segment != "" {
			parts = append(parts, segment)
		}
		current.Reset()
	}

	// Every byte that matters here is ASCII, so scan bytes and leave
	// non-UTF-8 payloads untouched.
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		switch {
		case escaped:
			current.WriteByte(b)
			escaped = false
		case b == '\\':
			current.WriteByte(b)
			escaped = true
		case b == '"':
			inQuotes = !inQuotes
			current.WriteByte(b)
		case !inQuotes && (b == SepSemicolon || b == SepLF || b == SepCR):
			flush()
		default:
			current.WriteByte(b)
		}
	}
	flush()

	return parts
}
