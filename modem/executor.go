package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"i4.energy/across/atbridge/at"
	"i4.energy/across/atbridge/routeros"
)

// ChainResult is what a chain execution hands back to its caller.
type ChainResult struct {
	// RunID identifies the chain in logs and published interactions.
	RunID string `json:"run_id"`
	// Stdout holds the response text of every executed command, separated by
	// blank lines.
	Stdout string `json:"stdout"`
	// Stderr holds router error output and, when the chain stopped early, the
	// reason, separated by blank lines.
	Stderr string `json:"stderr"`
	// ExitCode is the exit code of the last executed command; -1 when that
	// command failed at the transport level.
	ExitCode int `json:"exit_code"`
	// Executed and Total count the commands run and submitted.
	Executed int `json:"executed"`
	Total    int `json:"total"`
	// Aborted is set when a failure skipped the rest of the chain.
	Aborted bool `json:"aborted"`
}

// Executor runs chains of AT commands against one router.
//
// An Executor holds no connection between calls: every Run opens its own
// Session and closes it before returning, so one Executor may serve
// concurrent callers.
type Executor struct {
	config    Config
	observers []Observer
	logger    *slog.Logger
}

// NewExecutor creates an Executor. It returns ErrNoDialer when config has no
// Dialer.
func NewExecutor(config Config) (*Executor, error) {
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	e := &Executor{
		config: config,
		logger: config.logger,
	}
	if config.debug {
		e.observers = append(e.observers, NewDebugLog(config.debugLogPath))
	}
	e.observers = append(e.observers, config.observers...)

	return e, nil
}

// Commands splits and normalizes raw the way Run does.
//
// When splitting finds nothing but raw is not blank, the trimmed raw input is
// used as the single command.
func Commands(raw string) []string {
	segments := at.SplitChain(raw)
	if len(segments) == 0 {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			segments = []string{trimmed}
		}
	}

	commands := make([]string, 0, len(segments))
	for _, segment := range segments {
		if normalized := at.Normalize(segment); normalized != "" {
			commands = append(commands, normalized)
		}
	}
	return commands
}

// Run executes every command of raw in order over a single Session, stopping
// at the first failure.
//
// timeout bounds connection setup and each command; zero uses the configured
// command timeout. The returned error is non-nil only when nothing was
// executed: it wraps ErrConfiguration when the target is incomplete (no
// connection is attempted) and ErrConnection when the session could not be
// opened. Command failures are reported in the ChainResult.
func (e *Executor) Run(ctx context.Context, raw string, timeout time.Duration) (ChainResult, error) {
	target := e.config.target
	if err := target.Validate(); err != nil {
		return ChainResult{}, err
	}
	if timeout <= 0 {
		timeout = e.config.commandTimeout
	}

	commands := Commands(raw)
	result := ChainResult{
		RunID: uuid.NewString(),
		Total: len(commands),
	}
	if len(commands) == 0 {
		return result, nil
	}

	logger := e.logger.With("run_id", result.RunID)

	session, err := e.dial(ctx, timeout)
	if err != nil {
		logger.Error("Failed to open session", "target", target, "error", err)
		return ChainResult{}, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Debug("Closing session failed", "error", err)
		}
	}()

	var stdoutParts, stderrParts []string

	for i, command := range commands {
		ia := Interaction{
			RunID:     result.RunID,
			Interface: target.Interface,
			Position:  i + 1,
			Total:     len(commands),
			Command:   command,
		}

		args := e.config.builder.Build(target.Interface, command)
		out, runErr := session.Run(ctx, args, timeout)
		ia.Time = time.Now()

		if runErr != nil {
			ia.ExitCode = -1
			ia.Stderr = runErr.Error()
			ia.Err = runErr
		} else {
			reply := routeros.ParseReply(out.Stdout)
			ia.Status = reply.Status
			ia.Lines = reply.Lines
			ia.Stderr = out.Stderr
			ia.ExitCode = out.ExitCode
			ia.Succeeded = routeros.Succeeded(reply, out.Stderr, out.ExitCode)

			if text := strings.TrimSpace(reply.Text()); text != "" {
				stdoutParts = append(stdoutParts, text)
			}
			if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
				stderrParts = append(stderrParts, stderr)
			}
		}

		result.Executed = ia.Position
		result.ExitCode = ia.ExitCode

		logger.Debug("AT command executed",
			"position", ia.Position,
			"total", ia.Total,
			"command", command,
			"status", ia.Status,
			"exit_code", ia.ExitCode,
			"succeeded", ia.Succeeded,
		)
		e.notify(ia)

		if ia.Succeeded {
			continue
		}

		if runErr != nil {
			stderrParts = append(stderrParts, fmt.Sprintf(`Transport failure while executing "%s": %v`, command, runErr))
		}
		stderrParts = append(stderrParts, fmt.Sprintf(`Aborting remaining commands after failure of "%s".`, command))
		result.Aborted = true

		logger.Warn("AT chain aborted",
			"command", command,
			"position", ia.Position,
			"skipped", len(commands)-ia.Position,
			"exit_code", ia.ExitCode,
			"error", runErr,
		)
		break
	}

	result.Stdout = strings.Join(stdoutParts, "\n\n")
	result.Stderr = strings.Join(stderrParts, "\n\n")
	return result, nil
}

// Ping checks that the router is reachable with the configured credentials
// by running a command that echoes HealthMarker.
func (e *Executor) Ping(ctx context.Context, timeout time.Duration) error {
	if err := e.config.target.Validate(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = e.config.commandTimeout
	}

	session, err := e.dial(ctx, timeout)
	if err != nil {
		return err
	}
	defer session.Close()

	out, err := session.Run(ctx, e.config.builder.HealthCheck(HealthMarker), timeout)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 || !strings.Contains(out.Stdout, HealthMarker) {
		return fmt.Errorf("%w: exit code %d, output %q", ErrHealthCheck, out.ExitCode, strings.TrimSpace(out.Stdout+out.Stderr))
	}
	return nil
}

// Target returns the configured target.
func (e *Executor) Target() Target {
	return e.config.target
}

func (e *Executor) dial(ctx context.Context, timeout time.Duration) (Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := e.config.dialer.Dial(dialCtx, e.config.target)
	if err != nil {
		if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: dialer returned no session", ErrConnection)
	}
	return session, nil
}

func (e *Executor) notify(ia Interaction) {
	for _, o := range e.observers {
		o.Observe(ia)
	}
}
