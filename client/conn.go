package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

// ErrClosed is returned when using a closed connection
var ErrClosed = errors.New("client: connection closed")

// Conn is a single RESP connection with request/reply semantics.
// Requests on one Conn are serialized.
type Conn struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer
	closed bool

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Option configures a Conn
type Option func(*Conn)

// WithReadTimeout bounds the wait for each reply
func WithReadTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.readTimeout = d
	}
}

// WithWriteTimeout bounds each request write
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.writeTimeout = d
	}
}

// Dial connects to addr. The context bounds connection establishment only.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(netConn, opts...), nil
}

// NewConn wraps an established network connection
func NewConn(netConn net.Conn, opts ...Option) *Conn {
	c := &Conn{
		conn:   netConn,
		reader: protocol.NewReader(netConn),
		writer: protocol.NewWriter(netConn),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send writes one value and reads exactly one reply.
//
// Error replies from the peer are returned as values, not errors; the
// returned error is reserved for transport and protocol failures.
func (c *Conn) Send(ctx context.Context, request protocol.Value) (protocol.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return protocol.Value{}, ErrClosed
	}

	// Unblock pending I/O when the context ends
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := c.setDeadline(ctx, c.writeTimeout, c.conn.SetWriteDeadline); err != nil {
		return protocol.Value{}, err
	}
	if err := c.writer.WriteValue(request); err != nil {
		return protocol.Value{}, c.ioError(ctx, "write", err)
	}
	if err := c.writer.Flush(); err != nil {
		return protocol.Value{}, c.ioError(ctx, "write", err)
	}

	if err := c.setDeadline(ctx, c.readTimeout, c.conn.SetReadDeadline); err != nil {
		return protocol.Value{}, err
	}
	reply, err := c.reader.ReadNext()
	if err != nil {
		return protocol.Value{}, c.ioError(ctx, "read", err)
	}
	return reply, nil
}

// Do sends a command built from string arguments
func (c *Conn) Do(ctx context.Context, name string, args ...string) (protocol.Value, error) {
	return c.Send(ctx, protocol.NewCommand(name, args...))
}

// Ping checks the connection is usable
func (c *Conn) Ping(ctx context.Context) error {
	reply, err := c.Do(ctx, "PING")
	if err != nil {
		return err
	}
	if !reply.IsSimpleString("PONG") {
		return fmt.Errorf("unexpected PING reply: %s", reply.String())
	}
	return nil
}

// RemoteAddr returns the peer address
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the connection
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// setDeadline applies the earlier of the context deadline and timeout
func (c *Conn) setDeadline(ctx context.Context, timeout time.Duration, set func(time.Time) error) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return set(deadline)
}

func (c *Conn) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%s %s: %w", op, c.conn.RemoteAddr(), err)
}
