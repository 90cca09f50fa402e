package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultDialTimeout bounds the TCP connect and SSH handshake when neither the
// SSHDialer nor the context sets a tighter limit.
const DefaultDialTimeout = 30 * time.Second

// SSHDialer opens sessions to a router over SSH with password authentication.
//
// RouterOS offers both "password" and "keyboard-interactive"; the dialer tries
// them in that order with the same secret.
type SSHDialer struct {
	// Timeout bounds connection establishment. Zero means DefaultDialTimeout.
	Timeout time.Duration
	// HostKeyCallback verifies the router's host key. Nil accepts any key,
	// which matches how the router is usually first configured. See
	// KnownHosts for checking against an OpenSSH known_hosts file.
	HostKeyCallback ssh.HostKeyCallback
}

var _ Dialer = SSHDialer{}

// KnownHosts returns a host key callback that accepts only the keys listed in
// the given OpenSSH known_hosts files.
func KnownHosts(files ...string) (ssh.HostKeyCallback, error) {
	callback, err := knownhosts.New(files...)
	if err != nil {
		return nil, fmt.Errorf("%w: known hosts: %w", ErrConfiguration, err)
	}
	return callback, nil
}

// Dial validates target, then connects and authenticates. No network I/O
// happens for an incomplete target.
func (d SSHDialer) Dial(ctx context.Context, target Target) (Session, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	hostKeyCallback := d.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	password := target.Password.Reveal()
	config := &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	address := net.JoinHostPort(target.Host, strconv.Itoa(target.SSHPort()))
	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, address, err)
	}

	// The handshake has no context of its own: bound it with a deadline and
	// tear the socket down if ctx is cancelled meanwhile.
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, address, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		// x/crypto/ssh has no typed error for a rejected login.
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: authentication rejected by %s: %w", ErrConnection, address, err)
		}
		return nil, fmt.Errorf("%w: ssh handshake with %s: %w", ErrConnection, address, err)
	}

	if !stop() {
		sshConn.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, address, ctx.Err())
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, address, err)
	}

	return &sshSession{
		client:  ssh.NewClient(sshConn, chans, reqs),
		address: address,
	}, nil
}

// sshSession runs each command on a fresh channel of one client connection.
type sshSession struct {
	client  *ssh.Client
	address string

	mu       sync.Mutex
	isClosed bool
}

func (s *sshSession) Run(ctx context.Context, args []string, timeout time.Duration) (Output, error) {
	command := strings.Join(args, " ")

	s.mu.Lock()
	closed := s.isClosed
	s.mu.Unlock()
	if closed {
		return Output{}, fmt.Errorf("%w: %s: session closed", ErrExecution, command)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	channel, err := s.client.NewSession()
	if err != nil {
		return Output{}, fmt.Errorf("%w: open channel to %s: %w", ErrExecution, s.address, err)
	}
	defer channel.Close()

	var stdout, stderr bytes.Buffer
	channel.Stdout = &stdout
	channel.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- channel.Run(command)
	}()

	select {
	case err := <-done:
		out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

		var exitErr *ssh.ExitError
		var missingErr *ssh.ExitMissingError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			out.ExitCode = exitErr.ExitStatus()
		case errors.As(err, &missingErr):
			// the router closed the channel without reporting a status
			out.ExitCode = -1
		default:
			return Output{}, fmt.Errorf("%w: %s: %w", ErrExecution, command, err)
		}
		return out, nil

	case <-ctx.Done():
		// Closing the channel unblocks Run; its partial output is dropped.
		channel.Close()
		return Output{}, fmt.Errorf("%w: %s: %w", ErrExecution, command, ctx.Err())
	}
}

func (s *sshSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return nil
	}
	s.isClosed = true

	if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
