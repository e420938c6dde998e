package replication

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/client"
)

// Client runs the slave side of replication against one master
type Client struct {
	masterAddr    string
	listeningPort int
	state         *State

	// Connection state
	mu   sync.RWMutex
	conn *client.Conn

	stopped int32 // atomic flag to prevent double stop

	// Statistics
	statsMu sync.RWMutex
	stats   ReplicationStats

	// Configuration
	logger         Logger
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
}

// ReplicationStats is a snapshot of replication statistics
type ReplicationStats struct {
	Connected         bool
	MasterAddr        string
	MasterReplID      string
	ReplicationOffset int64
	LastSyncTime      time.Time
	HandshakeDuration time.Duration
	HandshakeAttempts int64
}

// Logger interface for replication logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// NewClient creates a replication client for the master in state.
// listeningPort is announced to the master with REPLCONF.
func NewClient(state *State, listeningPort int) *Client {
	masterAddr := ""
	if m := state.Master(); m != nil {
		masterAddr = m.String()
	}

	return &Client{
		masterAddr:     masterAddr,
		listeningPort:  listeningPort,
		state:          state,
		stats:          ReplicationStats{MasterAddr: masterAddr},
		connectTimeout: 5 * time.Second,
		readTimeout:    30 * time.Second,
		writeTimeout:   10 * time.Second,
		logger:         &defaultLogger{},
	}
}

// SetLogger sets the logger
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetConnectTimeout sets the connection timeout
func (c *Client) SetConnectTimeout(timeout time.Duration) {
	c.connectTimeout = timeout
}

// SetReadTimeout sets the read timeout for each handshake reply
func (c *Client) SetReadTimeout(timeout time.Duration) {
	c.readTimeout = timeout
}

// SetWriteTimeout sets the write timeout for each handshake request
func (c *Client) SetWriteTimeout(timeout time.Duration) {
	c.writeTimeout = timeout
}

// Start connects to the master and performs the handshake. The
// connection stays open until Stop. There is no retry: a failed
// handshake is returned to the caller.
func (c *Client) Start(ctx context.Context) error {
	if c.masterAddr == "" {
		return fmt.Errorf("replication client requires a slave state")
	}
	if atomic.LoadInt32(&c.stopped) == 1 {
		return client.ErrClosed
	}

	c.logger.Info("Starting replication client", "master", c.masterAddr)

	c.updateStats(func(s *ReplicationStats) {
		s.HandshakeAttempts++
	})

	conn, err := c.connect(ctx)
	if err != nil {
		c.logger.Error("Connection failed", "master", c.masterAddr, "error", err)
		return err
	}

	startTime := time.Now()
	if err := Handshake(ctx, conn, c.listeningPort, c.state); err != nil {
		c.logger.Error("Handshake failed", "master", c.masterAddr, "error", err)
		conn.Close()
		return err
	}
	duration := time.Since(startTime)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	info := c.state.Info()
	c.updateStats(func(s *ReplicationStats) {
		s.Connected = true
		s.MasterReplID = info.ReplID
		s.ReplicationOffset = info.ReplOffset
		s.LastSyncTime = time.Now()
		s.HandshakeDuration = duration
	})

	c.logger.Info("Handshake completed",
		"master", c.masterAddr,
		"replid", info.ReplID,
		"offset", info.ReplOffset,
		"duration", duration)
	return nil
}

// Stop closes the connection to the master
func (c *Client) Stop() error {
	// Use atomic CAS to ensure we only stop once
	if !atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		return nil
	}

	c.logger.Info("Stopping replication client")

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.updateStats(func(s *ReplicationStats) {
		s.Connected = false
	})

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Stats returns current replication statistics
func (c *Client) Stats() ReplicationStats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// connect establishes connection to master
func (c *Client) connect(ctx context.Context) (*client.Conn, error) {
	c.logger.Debug("Connecting to master", "addr", c.masterAddr)

	dialer := &net.Dialer{
		Timeout: c.connectTimeout,
	}

	netConn, err := dialer.DialContext(ctx, "tcp", c.masterAddr)
	if err != nil {
		return nil, &HandshakeError{Step: StepPing, Err: fmt.Errorf("dial failed: %w", err)}
	}

	c.logger.Debug("Connected to master", "addr", netConn.RemoteAddr().String())

	return client.NewConn(netConn,
		client.WithReadTimeout(c.readTimeout),
		client.WithWriteTimeout(c.writeTimeout),
	), nil
}

func (c *Client) updateStats(fn func(*ReplicationStats)) {
	c.statsMu.Lock()
	fn(&c.stats)
	c.statsMu.Unlock()
}

// defaultLogger discards everything
type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, fields ...interface{}) {}

func (l *defaultLogger) Info(msg string, fields ...interface{}) {}

func (l *defaultLogger) Error(msg string, fields ...interface{}) {}
