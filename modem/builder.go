package modem

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/shlex"

	"i4.energy/across/atbridge/routeros"
)

// HealthMarker is echoed by the health check command.
const HealthMarker = "atbridge-ok"

// Builder turns one normalized AT command into the argument tokens of the
// remote command line that delivers it to the modem.
type Builder interface {
	// Build returns the tokens for command on the LTE interface iface.
	Build(iface, command string) []string
	// HealthCheck returns the tokens of a harmless command that prints marker.
	HealthCheck(marker string) []string
}

// AtChatBuilder targets RouterOS through interface/lte/at-chat.
type AtChatBuilder struct{}

func (AtChatBuilder) Build(iface, command string) []string {
	return routeros.AtChat(iface, command)
}

func (AtChatBuilder) HealthCheck(marker string) []string {
	return []string{":put", `"` + routeros.Escape(marker) + `"`}
}

// ToolBuilder targets a Linux host that ships a modem CLI such as atcli_smd8,
// invoked as: <tool> [args] [-p <iface>] <command>. Every token is quoted for
// a POSIX shell.
type ToolBuilder struct {
	tool []string
	args []string
}

// NewToolBuilder splits tool and args with shell word rules. The error wraps
// ErrConfiguration.
func NewToolBuilder(tool, args string) (ToolBuilder, error) {
	toolWords, err := shlex.Split(tool)
	if err != nil {
		return ToolBuilder{}, fmt.Errorf("%w: at_command_tool: %w", ErrConfiguration, err)
	}
	if len(toolWords) == 0 {
		return ToolBuilder{}, fmt.Errorf("%w: at_command_tool is empty", ErrConfiguration)
	}
	argWords, err := shlex.Split(args)
	if err != nil {
		return ToolBuilder{}, fmt.Errorf("%w: at_command_args: %w", ErrConfiguration, err)
	}
	return ToolBuilder{tool: toolWords, args: argWords}, nil
}

func (b ToolBuilder) Build(iface, command string) []string {
	words := make([]string, 0, len(b.tool)+len(b.args)+3)
	words = append(words, b.tool...)
	words = append(words, b.args...)
	if iface = strings.TrimSpace(iface); iface != "" {
		words = append(words, "-p", iface)
	}
	words = append(words, command)
	return shellQuoteAll(words)
}

func (ToolBuilder) HealthCheck(marker string) []string {
	return shellQuoteAll([]string{"echo", marker})
}

// BuilderFor picks the builder for the configured command tool. An empty tool
// or the at-chat path selects RouterOS.
func BuilderFor(tool, args string) (Builder, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(tool), "/")
	if trimmed == "" || trimmed == routeros.AtChatPath {
		return AtChatBuilder{}, nil
	}
	return NewToolBuilder(tool, args)
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

func shellQuote(word string) string {
	if word == "" {
		return "''"
	}
	if shellSafe.MatchString(word) {
		return word
	}
	return "'" + strings.ReplaceAll(word, "'", `'"'"'`) + "'"
}

func shellQuoteAll(words []string) []string {
	quoted := make([]string, len(words))
	for i, word := range words {
		quoted[i] = shellQuote(word)
	}
	return quoted
}
