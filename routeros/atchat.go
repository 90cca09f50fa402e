// Package routeros knows the one RouterOS command this project speaks:
// interface/lte/at-chat. It builds the invocation for a single AT command and
// parses the reply the router prints for it.
package routeros

import (
	"strings"
)

// AtChatPath is the RouterOS CLI command that forwards one AT command to an
// LTE interface and prints the modem's answer.
const AtChatPath = "interface/lte/at-chat"

var (
	escaper   = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	unescaper = strings.NewReplacer(`\\`, `\`, `\"`, `"`)
)

// Escape prepares value for embedding inside a double quoted RouterOS
// argument: every backslash is doubled, then every double quote is escaped.
// Escape must be applied exactly once per value.
func Escape(value string) string {
	return escaper.Replace(value)
}

// Unescape reverses Escape.
func Unescape(value string) string {
	return unescaper.Replace(value)
}

// AtChat returns the argument tokens that run command on the LTE interface
// iface:
//
//	interface/lte/at-chat interface="<iface>" input="<command>"
//
// Both values are escaped here; callers pass them raw.
func AtChat(iface, command string) []string {
	return []string{
		AtChatPath,
		`interface="` + Escape(iface) + `"`,
		`input="` + Escape(command) + `"`,
	}
}
