package client

import (
	"context"
	"errors"
	"fmt"

	pool "github.com/jolestar/go-commons-pool/v2"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

// connectionFactory tells the object pool how to create, check and
// destroy connections to one address
type connectionFactory struct {
	addr string
	opts []Option
}

// MakeObject dials a new connection
func (f *connectionFactory) MakeObject(ctx context.Context) (*pool.PooledObject, error) {
	c, err := Dial(ctx, f.addr, f.opts...)
	if err != nil {
		return nil, err
	}
	return pool.NewPooledObject(c), nil
}

// DestroyObject closes a connection evicted from the pool
func (f *connectionFactory) DestroyObject(ctx context.Context, object *pool.PooledObject) error {
	c, ok := object.Object.(*Conn)
	if !ok {
		return errors.New("type mismatch")
	}
	return c.Close()
}

// ValidateObject pings the connection
func (f *connectionFactory) ValidateObject(ctx context.Context, object *pool.PooledObject) bool {
	c, ok := object.Object.(*Conn)
	if !ok {
		return false
	}
	return c.Ping(ctx) == nil
}

func (f *connectionFactory) ActivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

func (f *connectionFactory) PassivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

// Pool hands out connections to a single server
type Pool struct {
	addr    string
	objects *pool.ObjectPool
}

// NewPool creates a pool of at most size connections to addr.
// Connections are dialed lazily on first use.
func NewPool(ctx context.Context, addr string, size int, opts ...Option) *Pool {
	if size <= 0 {
		size = 1
	}

	config := pool.NewDefaultPoolConfig()
	config.MaxTotal = size
	config.MaxIdle = size
	config.TestOnBorrow = false

	return &Pool{
		addr:    addr,
		objects: pool.NewObjectPool(ctx, &connectionFactory{addr: addr, opts: opts}, config),
	}
}

// Get borrows a connection. It must be handed back with Put.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	raw, err := p.objects.BorrowObject(ctx)
	if err != nil {
		return nil, fmt.Errorf("borrow connection to %s: %w", p.addr, err)
	}
	c, ok := raw.(*Conn)
	if !ok {
		return nil, errors.New("connection factory made wrong type")
	}
	return c, nil
}

// Put returns a borrowed connection. A connection that failed with a
// transport error should be passed with broken set so it is discarded.
func (p *Pool) Put(ctx context.Context, c *Conn, broken bool) error {
	if broken {
		return p.objects.InvalidateObject(ctx, c)
	}
	return p.objects.ReturnObject(ctx, c)
}

// Send runs one request on a pooled connection
func (p *Pool) Send(ctx context.Context, request protocol.Value) (protocol.Value, error) {
	c, err := p.Get(ctx)
	if err != nil {
		return protocol.Value{}, err
	}

	reply, err := c.Send(ctx, request)
	if putErr := p.Put(ctx, c, err != nil); putErr != nil && err == nil {
		err = putErr
	}
	return reply, err
}

// Do runs one command on a pooled connection
func (p *Pool) Do(ctx context.Context, name string, args ...string) (protocol.Value, error) {
	return p.Send(ctx, protocol.NewCommand(name, args...))
}

// Active returns the number of borrowed connections
func (p *Pool) Active() int {
	return p.objects.GetNumActive()
}

// Idle returns the number of idle pooled connections
func (p *Pool) Idle() int {
	return p.objects.GetNumIdle()
}

// Close closes the pool and its idle connections
func (p *Pool) Close(ctx context.Context) {
	p.objects.Close(ctx)
}
