package modem_test

import (
	"strings"
	"time"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/atbridge/modem"
	"i4.energy/across/atbridge/routeros"
	"i4.energy/across/atbridge/secret"
)

const (
	testInterface = "lte1"
	testTimeout   = 5 * time.Second
)

func testTarget() modem.Target {
	return modem.Target{
		Host:      "192.0.2.1",
		Port:      22,
		Username:  "admin",
		Password:  secret.New("s3cret"),
		Interface: testInterface,
	}
}

// atChatReply renders what RouterOS prints for an at-chat call.
func atChatReply(status string, lines ...string) modem.Output {
	var b strings.Builder
	b.WriteString("  status: " + status + "\n")
	b.WriteString("  response:\n")
	for _, line := range lines {
		b.WriteString("    " + line + "\r\n")
	}
	return modem.Output{Stdout: b.String()}
}

type MockSequenceBuilder struct {
	session *modem.MockSession
	calls   []any
}

func NewMockSequence(session *modem.MockSession) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		session: session,
		calls:   []any{},
	}
}

// AtChat expects command to be sent to the test interface and answers with out.
func (b *MockSequenceBuilder) AtChat(command string, out modem.Output) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.session.EXPECT().
			Run(gomock.Any(), routeros.AtChat(testInterface, command), testTimeout).
			Return(out, nil),
	)
	return b
}

// AtChatFails expects command and fails it at the transport level.
func (b *MockSequenceBuilder) AtChatFails(command string, err error) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.session.EXPECT().
			Run(gomock.Any(), routeros.AtChat(testInterface, command), testTimeout).
			Return(modem.Output{}, err),
	)
	return b
}

func (b *MockSequenceBuilder) Close() *MockSequenceBuilder {
	b.calls = append(b.calls, b.session.EXPECT().Close().Return(nil))
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
