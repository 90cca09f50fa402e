package modem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"i4.energy/across/atbridge/secret"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

// DefaultSSHPort is used when a Target does not name a port.
const DefaultSSHPort = 22

// Target identifies the router and the LTE interface a chain is sent to.
type Target struct {
	Host      string
	Port      int
	Username  string
	Password  secret.Value
	Interface string
}

// Validate checks that every field needed to reach the modem is present.
// The returned error wraps ErrConfiguration.
func (t Target) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"host", t.Host},
		{"username", t.Username},
		{"password", t.Password.Reveal()},
		{"interface", t.Interface},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: missing %s", ErrConfiguration, field.name)
		}
	}
	if t.Port < 0 || t.Port > 65535 {
		return fmt.Errorf("%w: ssh port %d out of range", ErrConfiguration, t.Port)
	}
	return nil
}

// SSHPort returns the port to dial, falling back to DefaultSSHPort.
func (t Target) SSHPort() int {
	if t.Port == 0 {
		return DefaultSSHPort
	}
	return t.Port
}

// LogValue implements slog.LogValuer. The password is never included.
func (t Target) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("host", t.Host),
		slog.Int("port", t.SSHPort()),
		slog.String("username", t.Username),
		slog.String("interface", t.Interface),
	)
}

// Output is what one remote command printed and how it exited.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Session represents one authenticated connection to the router.
//
// A Session is owned by a single chain execution and must not be shared
// between concurrent chains. Commands are run one after another, each on its
// own channel.
type Session interface {
	// Run executes the command line made of args (joined by single spaces;
	// the Builder that produced them owns quoting) and waits at most timeout
	// for it to finish. Transport failures, including the timeout, are
	// returned as errors wrapping ErrExecution; a command that ran and exited
	// non-zero is not an error.
	Run(ctx context.Context, args []string, timeout time.Duration) (Output, error)

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Dialer opens a Session to the router described by a Target.
//
// Dialer abstracts how the connection is created (SSH in production, mocks
// in tests). Dial may block and should respect cancellation and deadlines
// provided by the context. Failures wrap ErrConfiguration when the Target is
// incomplete and ErrConnection otherwise.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}
