package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

// fakeServer answers PING with PONG, ECHO with its argument and
// everything else with an error. SLOW sleeps before replying.
type fakeServer struct {
	ln    net.Listener
	wg    sync.WaitGroup
	mu    sync.Mutex
	conns int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln}
	s.wg.Add(1)
	go s.accept()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *fakeServer) Addr() string {
	return s.ln.Addr().String()
}

func (s *fakeServer) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *fakeServer) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	reader := protocol.NewReader(conn)
	writer := protocol.NewWriter(conn)
	for {
		v, err := reader.ReadNext()
		if err != nil {
			return
		}
		cmd, err := protocol.ParseCommand(v)
		if err != nil {
			writer.WriteError("ERR " + err.Error())
			writer.Flush()
			continue
		}
		switch cmd.Name {
		case "PING":
			writer.WriteSimpleString("PONG")
		case "ECHO":
			writer.WriteBulkString(cmd.Args[0])
		case "SLOW":
			time.Sleep(200 * time.Millisecond)
			writer.WriteOK()
		default:
			writer.WriteError("ERR unknown command '" + strings.ToLower(cmd.Name) + "'")
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

func TestConnDo(t *testing.T) {
	srv := newFakeServer(t)
	ctx := context.Background()

	conn, err := Dial(ctx, srv.Addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	reply, err := conn.Do(ctx, "ECHO", "hello\r\nworld")
	if err != nil {
		t.Fatalf("Do(ECHO) error = %v", err)
	}
	if reply.String() != "hello\r\nworld" {
		t.Errorf("ECHO reply = %q", reply.String())
	}

	// Error replies are values, not transport errors
	reply, err = conn.Do(ctx, "NOPE")
	if err != nil {
		t.Fatalf("Do(NOPE) error = %v", err)
	}
	if !reply.IsError() {
		t.Errorf("expected error reply, got %v", reply.Type)
	}
}

func TestConnContextTimeout(t *testing.T) {
	srv := newFakeServer(t)

	conn, err := Dial(context.Background(), srv.Addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = conn.Do(ctx, "SLOW")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do(SLOW) error = %v, want deadline exceeded", err)
	}
}

func TestConnReadTimeout(t *testing.T) {
	srv := newFakeServer(t)

	conn, err := Dial(context.Background(), srv.Addr(), WithReadTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	_, err = conn.Do(context.Background(), "SLOW")
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("Do(SLOW) error = %v, want timeout", err)
	}
}

func TestConnClosed(t *testing.T) {
	srv := newFakeServer(t)

	conn, err := Dial(context.Background(), srv.Addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	conn.Close()

	if _, err := conn.Do(context.Background(), "PING"); !errors.Is(err, ErrClosed) {
		t.Errorf("Do() after Close error = %v, want ErrClosed", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Dial(context.Background(), addr); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestPool(t *testing.T) {
	srv := newFakeServer(t)
	ctx := context.Background()

	p := NewPool(ctx, srv.Addr(), 4)
	defer p.Close(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				reply, err := p.Do(ctx, "PING")
				if err != nil {
					t.Errorf("Do() error = %v", err)
					return
				}
				if !reply.IsSimpleString("PONG") {
					t.Errorf("reply = %q, want PONG", reply.String())
				}
			}
		}()
	}
	wg.Wait()

	if p.Active() != 0 {
		t.Errorf("Active() = %d, want 0", p.Active())
	}
	if got := srv.Conns(); got > 4 {
		t.Errorf("server saw %d connections, want at most 4", got)
	}
}

func TestPoolDiscardsBrokenConn(t *testing.T) {
	srv := newFakeServer(t)
	ctx := context.Background()

	p := NewPool(ctx, srv.Addr(), 1)
	defer p.Close(ctx)

	c, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	c.Close()
	if err := p.Put(ctx, c, true); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if p.Idle() != 0 {
		t.Errorf("Idle() = %d, want 0", p.Idle())
	}

	if _, err := p.Do(ctx, "PING"); err != nil {
		t.Fatalf("Do() after discard error = %v", err)
	}
	if srv.Conns() != 2 {
		t.Errorf("server saw %d connections, want 2", srv.Conns())
	}
}
