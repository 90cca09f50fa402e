package modem

import (
	"time"
)

// Interaction records one executed AT command of a chain. Skipped commands
// never produce one.
type Interaction struct {
	RunID     string    `json:"run_id"`
	Time      time.Time `json:"time"`
	Interface string    `json:"interface"`
	Position  int       `json:"position"`
	Total     int       `json:"total"`
	Command   string    `json:"command"`
	Status    string    `json:"status"`
	Lines     []string  `json:"response"`
	Stderr    string    `json:"stderr,omitempty"`
	ExitCode  int       `json:"exit_code"`
	Succeeded bool      `json:"succeeded"`
	// Err is the transport failure, if the command never produced output.
	Err error `json:"-"`
}

// Observer is notified after every executed command, in execution order, on
// the goroutine running the chain. Observers must not fail the chain: they
// swallow their own errors.
type Observer interface {
	Observe(Interaction)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Interaction)

func (f ObserverFunc) Observe(ia Interaction) {
	f(ia)
}
