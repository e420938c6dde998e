package replication

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

// Step names a stage of the slave handshake
type Step string

const (
	StepPing          Step = "PING"
	StepListeningPort Step = "REPLCONF listening-port"
	StepCapa          Step = "REPLCONF capa"
	StepPSync         Step = "PSYNC"
)

// ErrUnexpectedReply is wrapped by HandshakeError when the master
// answered a step with something else than expected
var ErrUnexpectedReply = errors.New("unexpected reply")

// HandshakeError reports the handshake step that failed
type HandshakeError struct {
	Step Step
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake %s: %v", e.Step, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Sender sends one request and returns the single reply
type Sender interface {
	Send(ctx context.Context, request protocol.Value) (protocol.Value, error)
}

// Handshake runs the slave side of the replication handshake over conn:
// PING, REPLCONF listening-port, REPLCONF capa psync2 and PSYNC ? -1.
// Each step waits for the expected reply before the next is sent. On
// success the master's replication id and offset are stored in state.
func Handshake(ctx context.Context, conn Sender, listeningPort int, state *State) error {
	steps := []struct {
		step    Step
		request protocol.Value
		expect  string
	}{
		{StepPing, protocol.NewCommand("ping"), "PONG"},
		{StepListeningPort, protocol.NewCommand("REPLCONF", "listening-port", strconv.Itoa(listeningPort)), "OK"},
		{StepCapa, protocol.NewCommand("REPLCONF", "capa", "psync2"), "OK"},
	}

	for _, s := range steps {
		reply, err := conn.Send(ctx, s.request)
		if err != nil {
			return &HandshakeError{Step: s.step, Err: err}
		}
		if !reply.IsSimpleString(s.expect) {
			return &HandshakeError{Step: s.step, Err: unexpected(reply, s.expect)}
		}
	}

	reply, err := conn.Send(ctx, protocol.NewCommand("PSYNC", "?", "-1"))
	if err != nil {
		return &HandshakeError{Step: StepPSync, Err: err}
	}

	replID, offset, err := parseFullResync(reply)
	if err != nil {
		return &HandshakeError{Step: StepPSync, Err: err}
	}

	state.CompleteFullResync(replID, offset)
	return nil
}

// parseFullResync parses "+FULLRESYNC <replid> <offset>"
func parseFullResync(reply protocol.Value) (string, int64, error) {
	if reply.Type != protocol.TypeSimpleString {
		return "", 0, unexpected(reply, "FULLRESYNC <replid> <offset>")
	}

	parts := strings.Fields(reply.String())
	if len(parts) != 3 || parts[0] != "FULLRESYNC" {
		return "", 0, unexpected(reply, "FULLRESYNC <replid> <offset>")
	}

	if len(parts[1]) != ReplIDLength {
		return "", 0, fmt.Errorf("%w: invalid replication ID %q", ErrUnexpectedReply, parts[1])
	}
	offset, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || offset < 0 {
		return "", 0, fmt.Errorf("%w: invalid offset %q", ErrUnexpectedReply, parts[2])
	}
	return parts[1], offset, nil
}

func unexpected(reply protocol.Value, want string) error {
	if reply.IsError() {
		return fmt.Errorf("%w: master error %q, want %s", ErrUnexpectedReply, reply.Error(), want)
	}
	return fmt.Errorf("%w: got %s %q, want %s", ErrUnexpectedReply, reply.Type, reply.String(), want)
}
