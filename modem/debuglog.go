package modem

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DebugLogName is the file name used when no debug log path is configured.
const DebugLogName = "at_debug.log"

// debugLogMu serializes appends from every DebugLog in the process.
var debugLogMu sync.Mutex

// DebugLog appends a human readable block per Interaction to a file.
//
// The file and its directory are created on first write. Write failures are
// ignored.
type DebugLog struct {
	path func() string
}

var _ Observer = (*DebugLog)(nil)

// NewDebugLog returns a DebugLog writing to the file named by path. The
// provider is called for every write; an empty result skips the write.
func NewDebugLog(path func() string) *DebugLog {
	return &DebugLog{path: path}
}

// DefaultDebugLogPath places the log beside the running executable.
func DefaultDebugLogPath() string {
	exe, err := os.Executable()
	if err != nil {
		return DebugLogName
	}
	return filepath.Join(filepath.Dir(exe), DebugLogName)
}

func (l *DebugLog) Observe(ia Interaction) {
	if l == nil || l.path == nil {
		return
	}
	path := l.path()
	if path == "" {
		return
	}
	block := FormatInteraction(ia)

	debugLogMu.Lock()
	defer debugLogMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(block)
}

// FormatInteraction renders ia as a debug log block, terminated by a blank
// line.
func FormatInteraction(ia Interaction) string {
	status := ia.Status
	if status == "" {
		status = "N/A"
	}

	var b strings.Builder
	b.WriteString("[" + ia.Time.Format("2006-01-02T15:04:05") + "] ")
	b.WriteString("Command " + strconv.Itoa(ia.Position) + "/" + strconv.Itoa(ia.Total) + ": " + ia.Command + "\n")
	b.WriteString("Status: " + status + " | Exit code: " + strconv.Itoa(ia.ExitCode) + "\n")

	if len(ia.Lines) > 0 {
		b.WriteString("Response:\n")
		for _, line := range ia.Lines {
			b.WriteString("  " + line + "\n")
		}
	} else {
		b.WriteString("Response: <empty>\n")
	}

	if stderr := strings.TrimSpace(ia.Stderr); stderr != "" {
		b.WriteString("Stderr:\n")
		for _, line := range strings.Split(stderr, "\n") {
			b.WriteString("  " + strings.TrimRight(line, "\r") + "\n")
		}
	}

	b.WriteString("\n")
	return b.String()
}
