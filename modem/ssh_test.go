package modem_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"i4.energy/across/atbridge/modem"
	"i4.energy/across/atbridge/secret"
)

// execResult is what the fake router answers to one exec request.
type execResult struct {
	stdout, stderr string
	status         uint32
	// noStatus closes the channel without an exit-status request.
	noStatus bool
	// hang keeps the channel open until the server is stopped.
	hang bool
}

type fakeRouter struct {
	listener net.Listener
	password string
	handle   func(command string) execResult
	hostKey  ssh.PublicKey

	accepted atomic.Int32
	commands chan string
	done     chan struct{}
}

func newFakeRouter(t *testing.T, password string, handle func(string) execResult) *fakeRouter {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("host key signer: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	r := &fakeRouter{
		listener: listener,
		password: password,
		handle:   handle,
		hostKey:  signer.PublicKey(),
		commands: make(chan string, 16),
		done:     make(chan struct{}),
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == r.password {
				return nil, nil
			}
			return nil, errors.New("password rejected")
		},
	}
	config.AddHostKey(signer)

	go r.serve(config)
	t.Cleanup(func() {
		close(r.done)
		listener.Close()
	})
	return r
}

func (r *fakeRouter) target() modem.Target {
	host, port, _ := net.SplitHostPort(r.listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return modem.Target{
		Host:      host,
		Port:      p,
		Username:  "admin",
		Password:  secret.New(r.password),
		Interface: testInterface,
	}
}

func (r *fakeRouter) serve(config *ssh.ServerConfig) {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return
		}
		r.accepted.Add(1)
		go r.serveConn(conn, config)
	}
}

func (r *fakeRouter) serveConn(conn net.Conn, config *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go r.serveChannel(channel, requests)
	}
}

func (r *fakeRouter) serveChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil)
			return
		}
		req.Reply(true, nil)
		r.commands <- payload.Command

		result := r.handle(payload.Command)
		if result.hang {
			<-r.done
			return
		}
		channel.Write([]byte(result.stdout))
		channel.Stderr().Write([]byte(result.stderr))
		if !result.noStatus {
			status := struct{ Status uint32 }{result.status}
			channel.SendRequest("exit-status", false, ssh.Marshal(&status))
		}
		return
	}
}

func TestSSHDialer(t *testing.T) {
	t.Run("Runs commands and reports exit status", func(t *testing.T) {
		router := newFakeRouter(t, "s3cret", func(command string) execResult {
			switch {
			case strings.Contains(command, `input="AT+CSQ"`):
				return execResult{stdout: "  status: ok\r\n  response:\r\n    +CSQ: 15,99\r\n    OK\r\n"}
			default:
				return execResult{stderr: "failure: bad input\n", status: 3}
			}
		})

		session, err := modem.SSHDialer{Timeout: 5 * time.Second}.Dial(context.Background(), router.target())
		if err != nil {
			t.Fatalf("unexpected error from Dial(): %v", err)
		}
		defer session.Close()

		out, err := session.Run(context.Background(), modem.AtChatBuilder{}.Build(testInterface, "AT+CSQ"), time.Second)
		if err != nil {
			t.Fatalf("unexpected error from Run(): %v", err)
		}
		if !strings.Contains(out.Stdout, "+CSQ: 15,99") || out.ExitCode != 0 {
			t.Errorf("unexpected output: %+v", out)
		}

		expected := `interface/lte/at-chat interface="lte1" input="AT+CSQ"`
		if got := <-router.commands; got != expected {
			t.Errorf("expected command %q, got %q", expected, got)
		}

		out, err = session.Run(context.Background(), modem.AtChatBuilder{}.Build(testInterface, "AT+BAD"), time.Second)
		if err != nil {
			t.Fatalf("unexpected error from Run(): %v", err)
		}
		if out.ExitCode != 3 || out.Stderr != "failure: bad input\n" {
			t.Errorf("unexpected output: %+v", out)
		}

		if n := router.accepted.Load(); n != 1 {
			t.Errorf("expected both commands on one connection, got %d connections", n)
		}
	})

	t.Run("Missing exit status", func(t *testing.T) {
		router := newFakeRouter(t, "s3cret", func(string) execResult {
			return execResult{stdout: "partial", noStatus: true}
		})

		session, err := modem.SSHDialer{}.Dial(context.Background(), router.target())
		if err != nil {
			t.Fatalf("unexpected error from Dial(): %v", err)
		}
		defer session.Close()

		out, err := session.Run(context.Background(), []string{":put", "x"}, time.Second)
		if err != nil {
			t.Fatalf("unexpected error from Run(): %v", err)
		}
		if out.ExitCode != -1 {
			t.Errorf("expected exit code -1, got %d", out.ExitCode)
		}
	})

	t.Run("Command timeout", func(t *testing.T) {
		router := newFakeRouter(t, "s3cret", func(string) execResult {
			return execResult{hang: true}
		})

		session, err := modem.SSHDialer{}.Dial(context.Background(), router.target())
		if err != nil {
			t.Fatalf("unexpected error from Dial(): %v", err)
		}
		defer session.Close()

		_, err = session.Run(context.Background(), []string{"AT+COPS=?"}, 50*time.Millisecond)
		if !errors.Is(err, modem.ErrExecution) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected ErrExecution wrapping DeadlineExceeded, got: %v", err)
		}
	})

	t.Run("Rejected password", func(t *testing.T) {
		router := newFakeRouter(t, "s3cret", func(string) execResult { return execResult{} })

		target := router.target()
		target.Password = secret.New("wrong")

		_, err := modem.SSHDialer{}.Dial(context.Background(), target)
		if !errors.Is(err, modem.ErrConnection) {
			t.Errorf("expected ErrConnection, got: %v", err)
		}
		if !strings.Contains(err.Error(), "unable to authenticate") {
			t.Errorf("expected the handshake error to be kept, got: %v", err)
		}
		if strings.Contains(err.Error(), "wrong") {
			t.Errorf("error must not contain the password: %v", err)
		}
	})

	t.Run("Incomplete target never connects", func(t *testing.T) {
		router := newFakeRouter(t, "s3cret", func(string) execResult { return execResult{} })

		target := router.target()
		target.Password = secret.Value{}

		_, err := modem.SSHDialer{}.Dial(context.Background(), target)
		if !errors.Is(err, modem.ErrConfiguration) {
			t.Errorf("expected ErrConfiguration, got: %v", err)
		}
		if n := router.accepted.Load(); n != 0 {
			t.Errorf("expected no connection attempt, got %d", n)
		}
	})

	t.Run("Unreachable router", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addr := listener.Addr().String()
		listener.Close()

		host, port, _ := net.SplitHostPort(addr)
		p, _ := strconv.Atoi(port)
		target := testTarget()
		target.Host, target.Port = host, p

		_, err = modem.SSHDialer{Timeout: time.Second}.Dial(context.Background(), target)
		if !errors.Is(err, modem.ErrConnection) {
			t.Errorf("expected ErrConnection, got: %v", err)
		}
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		router := newFakeRouter(t, "s3cret", func(string) execResult { return execResult{} })

		session, err := modem.SSHDialer{}.Dial(context.Background(), router.target())
		if err != nil {
			t.Fatalf("unexpected error from Dial(): %v", err)
		}
		if err := session.Close(); err != nil {
			t.Errorf("unexpected error from first Close(): %v", err)
		}
		if err := session.Close(); err != nil {
			t.Errorf("unexpected error from second Close(): %v", err)
		}
		if _, err := session.Run(context.Background(), []string{"AT"}, time.Second); !errors.Is(err, modem.ErrExecution) {
			t.Errorf("expected ErrExecution after Close(), got: %v", err)
		}
	})
}

func TestKnownHosts(t *testing.T) {
	writeKnownHosts := func(t *testing.T, addr string, key ssh.PublicKey) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "known_hosts")
		line := knownhosts.Line([]string{addr}, key) + "\n"
		if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("Known router key is accepted", func(t *testing.T) {
		router := newFakeRouter(t, "s3cret", func(string) execResult { return execResult{} })
		callback, err := modem.KnownHosts(writeKnownHosts(t, router.listener.Addr().String(), router.hostKey))
		if err != nil {
			t.Fatalf("unexpected error from KnownHosts(): %v", err)
		}

		session, err := modem.SSHDialer{HostKeyCallback: callback}.Dial(context.Background(), router.target())
		if err != nil {
			t.Fatalf("unexpected error from Dial(): %v", err)
		}
		session.Close()
	})

	t.Run("Changed router key is rejected", func(t *testing.T) {
		router := newFakeRouter(t, "s3cret", func(string) execResult { return execResult{} })
		other := newFakeRouter(t, "s3cret", func(string) execResult { return execResult{} })
		callback, err := modem.KnownHosts(writeKnownHosts(t, router.listener.Addr().String(), other.hostKey))
		if err != nil {
			t.Fatalf("unexpected error from KnownHosts(): %v", err)
		}

		_, err = modem.SSHDialer{HostKeyCallback: callback}.Dial(context.Background(), router.target())
		if !errors.Is(err, modem.ErrConnection) {
			t.Errorf("expected ErrConnection, got: %v", err)
		}
		if err == nil || !strings.Contains(err.Error(), "key mismatch") {
			t.Errorf("expected a key mismatch, got: %v", err)
		}
	})

	t.Run("Unknown router is rejected", func(t *testing.T) {
		router := newFakeRouter(t, "s3cret", func(string) execResult { return execResult{} })
		callback, err := modem.KnownHosts(writeKnownHosts(t, "192.0.2.1:22", router.hostKey))
		if err != nil {
			t.Fatalf("unexpected error from KnownHosts(): %v", err)
		}

		_, err = modem.SSHDialer{HostKeyCallback: callback}.Dial(context.Background(), router.target())
		if !errors.Is(err, modem.ErrConnection) {
			t.Errorf("expected ErrConnection, got: %v", err)
		}
		if err == nil || !strings.Contains(err.Error(), "key is unknown") {
			t.Errorf("expected an unknown key, got: %v", err)
		}
		if router.accepted.Load() != 1 {
			t.Errorf("expected one connection attempt, got %d", router.accepted.Load())
		}
	})

	t.Run("Missing file is a configuration error", func(t *testing.T) {
		_, err := modem.KnownHosts(filepath.Join(t.TempDir(), "missing"))
		if !errors.Is(err, modem.ErrConfiguration) {
			t.Errorf("expected ErrConfiguration, got: %v", err)
		}
	})
}

func TestExecutorOverSSH(t *testing.T) {
	router := newFakeRouter(t, "s3cret", func(command string) execResult {
		switch {
		case strings.Contains(command, `input="AT+CSQ"`):
			return execResult{stdout: "  status: ok\r\n  response:\r\n    +CSQ: 15,99\r\n    OK\r\n"}
		case strings.Contains(command, `input="AT+BADCMD"`):
			return execResult{stdout: "  status: error\r\n  response:\r\n    ERROR\r\n"}
		default:
			return execResult{stdout: "  status: ok\r\n"}
		}
	})

	config, err := modem.NewConfigBuilder().
		WithDialer(modem.SSHDialer{Timeout: 5 * time.Second}).
		WithTarget(router.target()).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	e, err := modem.NewExecutor(config)
	if err != nil {
		t.Fatalf("unexpected error from NewExecutor(): %v", err)
	}

	result, err := e.Run(context.Background(), "AT+CSQ;AT+BADCMD;AT+CGMI", 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error from Run(): %v", err)
	}

	if result.Stdout != "+CSQ: 15,99\nOK\n\nERROR" {
		t.Errorf("unexpected stdout %q", result.Stdout)
	}
	if !strings.Contains(result.Stderr, `"AT+BADCMD"`) {
		t.Errorf("expected abort message naming AT+BADCMD, got %q", result.Stderr)
	}
	if n := len(router.commands); n != 2 {
		t.Errorf("expected 2 commands sent, got %d", n)
	}
	if n := router.accepted.Load(); n != 1 {
		t.Errorf("expected a single connection, got %d", n)
	}
}
