package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/raniellyferreira/redis-inmemory-server/lua"
	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/replication"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// RedisVersion is the Redis version reported by INFO server
const RedisVersion = "7.2.0"

var pid = os.Getpid()

// Logger interface for server logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, fields ...interface{}) {}
func (nopLogger) Info(msg string, fields ...interface{})  {}
func (nopLogger) Error(msg string, fields ...interface{}) {}

// Server provides Redis protocol server functionality
type Server struct {
	storage storage.Storage
	repl    *replication.State
	lua     *lua.Engine

	// Server configuration
	addr        string
	idleTimeout time.Duration
	logger      Logger
	metrics     *serverMetrics
	startTime   time.Time

	// Connection management
	listener net.Listener
	clients  *xsync.MapOf[uint64, *Client]
	nextID   atomic.Uint64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped atomic.Bool

	// Counters
	connCount    atomic.Int64
	commandCount atomic.Int64
	errorCount   atomic.Int64
}

// Client represents a connected Redis client
type Client struct {
	id     uint64
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer
	server *Server

	// Replica registration in progress on this connection
	registration *replication.Registration

	// Client state
	lastCmd time.Time
	closing bool

	closeOnce sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithReplication sets the replication state served by INFO, REPLCONF
// and PSYNC. A new master state is used by default.
func WithReplication(state *replication.State) Option {
	return func(s *Server) {
		if state != nil {
			s.repl = state
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIdleTimeout closes connections that send nothing for d. Zero
// disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

// WithMetricsSet reports metrics into set instead of a private one
func WithMetricsSet(set *metrics.Set) Option {
	return func(s *Server) {
		s.metrics = newServerMetrics(set, s.connectedClients)
	}
}

// NewServer creates a new Redis protocol server
func NewServer(addr string, storage storage.Storage, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		storage: storage,
		lua:     lua.NewEngine(storage),
		addr:    addr,
		logger:  nopLogger{},
		clients: xsync.NewMapOf[uint64, *Client](),
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.repl == nil {
		s.repl = replication.NewState(replication.Config{})
	}
	if s.metrics == nil {
		s.metrics = newServerMetrics(nil, s.connectedClients)
	}

	return s
}

// Start starts the Redis server
func (s *Server) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.startTime = time.Now()

	s.logger.Info("Server listening", "addr", s.listener.Addr().String(), "role", s.repl.Role().String())

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Stop stops the Redis server
func (s *Server) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	// Close all client connections
	s.clients.Range(func(_ uint64, client *Client) bool {
		client.Close()
		return true
	})

	s.wg.Wait()
	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Port returns the TCP port the server listens on, or 0 before Start
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Replication returns the replication state
func (s *Server) Replication() *replication.State {
	return s.repl
}

// Stats returns server statistics
func (s *Server) Stats() map[string]interface{} {
	return map[string]interface{}{
		"connected_clients": s.clients.Size(),
		"total_commands":    s.commandCount.Load(),
		"total_errors":      s.errorCount.Load(),
		"total_connections": s.connCount.Load(),
	}
}

func (s *Server) connectedClients() float64 {
	return float64(s.clients.Size())
}

// acceptConnections accepts new client connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return // Server is shutting down
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Accept failed", "error", err)
			continue
		}

		s.handleNewClient(conn)
	}
}

// handleNewClient handles a new client connection
func (s *Server) handleNewClient(conn net.Conn) {
	s.connCount.Add(1)
	s.metrics.connectionsTotal.Inc()

	client := &Client{
		id:           s.nextID.Add(1),
		conn:         conn,
		reader:       protocol.NewReader(conn),
		writer:       protocol.NewWriter(conn),
		server:       s,
		registration: replication.NewRegistration(s.repl),
		lastCmd:      time.Now(),
	}

	s.clients.Store(client.id, client)
	if s.ctx.Err() != nil {
		// Stop raced with Accept
		client.Close()
		return
	}
	s.logger.Debug("Client connected", "id", client.id, "remote", conn.RemoteAddr().String())

	s.wg.Add(1)
	go client.handle()
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		c.server.clients.Delete(c.id)
	})
}

// handle handles client requests in arrival order
func (c *Client) handle() {
	defer c.server.wg.Done()
	defer c.Close()
	defer c.server.logger.Debug("Client disconnected", "id", c.id)

	for !c.closing {
		if c.server.idleTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.server.idleTimeout))
		}

		value, err := c.reader.ReadNext()
		if err != nil {
			c.handleReadError(err)
			return
		}

		c.lastCmd = time.Now()
		c.dispatch(value)
	}
}

// handleReadError replies to malformed input. Transport errors and
// shutdown end the connection silently.
func (c *Client) handleReadError(err error) {
	if errors.Is(err, io.EOF) || c.server.ctx.Err() != nil {
		return
	}

	var formatErr *protocol.FormatError
	if errors.As(err, &formatErr) && !errors.Is(err, protocol.ErrIncomplete) {
		c.server.logger.Debug("Protocol error", "id", c.id, "error", err)
		c.writeError(fmt.Sprintf("ERR Protocol error: %s", formatErr.Reason))
		return
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.server.logger.Debug("Client idle timeout", "id", c.id)
		return
	}

	c.server.logger.Debug("Read failed", "id", c.id, "error", err)
}

// dispatch validates a request and executes it
func (c *Client) dispatch(value protocol.Value) {
	cmd, err := protocol.ParseCommand(value)
	if err != nil {
		c.writeError(fmt.Sprintf("ERR Protocol error: %v", err))
		return
	}

	start := time.Now()
	c.server.commandCount.Add(1)
	c.executeCommand(cmd)
	c.server.metrics.observeCommand(cmd.Name, start)
}

// Response writers

func (c *Client) writeString(s string) {
	c.writer.WriteSimpleString(s)
	c.writer.Flush()
}

func (c *Client) writeError(s string) {
	c.server.errorCount.Add(1)
	c.server.metrics.commandErrors.Inc()
	// Clean error message by removing internal newlines which can break RESP protocol
	cleanMsg := strings.ReplaceAll(s, "\n", " ")
	cleanMsg = strings.ReplaceAll(cleanMsg, "\r", " ")
	c.writer.WriteError(cleanMsg)
	c.writer.Flush()
}

func (c *Client) writeBulkString(data []byte) {
	c.writer.WriteBulkString(data)
	c.writer.Flush()
}

func (c *Client) writeNull() {
	c.writer.WriteNull()
	c.writer.Flush()
}

func (c *Client) writeValue(v protocol.Value) {
	if v.IsError() {
		c.server.errorCount.Add(1)
		c.server.metrics.commandErrors.Inc()
	}
	c.writer.WriteValue(v)
	c.writer.Flush()
}
