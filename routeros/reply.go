package routeros

import (
	"bufio"
	"strings"

	"i4.energy/across/atbridge/at"
)

// Reply is the parsed output of one at-chat invocation.
type Reply struct {
	// Status is the value of the "status:" line, "" when the router printed none.
	Status string
	// Lines are the modem output lines in order, trimmed, blank lines removed.
	Lines []string
}

// Text joins the response lines with newlines.
func (r Reply) Text() string {
	return strings.Join(r.Lines, "\n")
}

// ParseReply extracts the status and the modem output from the text at-chat
// printed.
//
// A "status:" line (any case) sets Status. A "response:" line opens the
// response block; text after its colon is the first response line. Every other
// non-blank line is kept as response output, whether or not it appeared inside
// the block, so firmwares that omit the markers still yield their output.
func ParseReply(stdout string) Reply {
	var (
		reply      Reply
		collecting bool
	)

	// No line can be longer than the whole output, so the scanner never
	// stops early on a long modem line.
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 4096), len(stdout)+1)
	scanner.Split(at.ScanLines)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		lowered := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lowered, "status:"):
			reply.Status = remainder(line)
			collecting = false
		case strings.HasPrefix(lowered, "response:"):
			collecting = true
			if rest := remainder(line); rest != "" {
				reply.Lines = append(reply.Lines, rest)
			}
		case collecting:
			reply.Lines = append(reply.Lines, line)
		default:
			// outside the block: keep it anyway
			reply.Lines = append(reply.Lines, line)
		}
	}

	return reply
}

func remainder(line string) string {
	_, rest, _ := strings.Cut(line, ":")
	return strings.TrimSpace(rest)
}

// Succeeded reports whether the invocation that produced reply worked.
//
// Any non-zero exit code or stderr output is a failure. Otherwise the status
// decides when it starts with "ok" or "error". Without a usable status the
// response lines are scanned for a bare OK or anything containing ERROR.
// Output without any marker counts as success, no output at all as failure.
func Succeeded(reply Reply, stderr string, exitCode int) bool {
	if exitCode != 0 {
		return false
	}
	if strings.TrimSpace(stderr) != "" {
		return false
	}

	status := strings.ToLower(reply.Status)
	switch {
	case strings.HasPrefix(status, "ok"):
		return true
	case strings.HasPrefix(status, "error"):
		return false
	}

	for _, line := range reply.Lines {
		upper := strings.ToUpper(line)
		if upper == at.OK {
			return true
		}
		if strings.Contains(upper, at.ERROR) {
			return false
		}
	}

	return len(reply.Lines) > 0
}
