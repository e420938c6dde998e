package replication

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPortAlreadySet is returned when a listening port arrives while
	// another one is still waiting for its capabilities
	ErrPortAlreadySet = errors.New("listening port already set")

	// ErrPortNotSet is returned when capabilities arrive before a port
	ErrPortNotSet = errors.New("listening port not set")

	// ErrMalformedCapa is returned when capa arguments are not capa/value pairs
	ErrMalformedCapa = errors.New("expected capa <value> pairs")
)

// RegistrationError reports a REPLCONF sequence violation. It is fatal
// for the connection that caused it.
type RegistrationError struct {
	Op  string
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("replconf %s: %v", e.Op, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Registration tracks one connection's in-progress slave registration:
// a listening port followed by its capabilities.
type Registration struct {
	state   *State
	port    uint16
	pending bool
}

// NewRegistration creates per-connection registration state
func NewRegistration(state *State) *Registration {
	return &Registration{state: state}
}

// Pending reports whether a port is waiting for capabilities
func (r *Registration) Pending() bool {
	return r.pending
}

// ListeningPort records the port the replica listens on
func (r *Registration) ListeningPort(port uint16) error {
	if r.pending {
		return &RegistrationError{Op: "listening-port", Err: ErrPortAlreadySet}
	}
	if port == 0 {
		return &RegistrationError{Op: "listening-port", Err: fmt.Errorf("invalid port %d", port)}
	}
	r.port = port
	r.pending = true
	return nil
}

// Capabilities consumes "capa <value>" pairs and commits the replica
// to the registry. The registration then resets so a second commit
// needs a new port.
func (r *Registration) Capabilities(args [][]byte) error {
	if !r.pending {
		return &RegistrationError{Op: "capa", Err: ErrPortNotSet}
	}
	if len(args) == 0 || len(args)%2 != 0 {
		return &RegistrationError{Op: "capa", Err: ErrMalformedCapa}
	}

	caps := make([]string, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if !strings.EqualFold(string(args[i]), "capa") {
			return &RegistrationError{Op: "capa", Err: ErrMalformedCapa}
		}
		caps = append(caps, string(args[i+1]))
	}

	if err := r.state.AddSlave(Slave{ListeningPort: r.port, Capabilities: caps}); err != nil {
		return &RegistrationError{Op: "capa", Err: err}
	}

	r.port = 0
	r.pending = false
	return nil
}
