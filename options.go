package redisserver

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/raniellyferreira/redis-inmemory-server/replication"
)

// config holds the configuration for a Node
type config struct {
	// Listener settings
	bindAddr string
	port     int

	// Replication settings
	replicaOf *replication.MasterAddr

	// Timeouts
	idleTimeout    time.Duration
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration

	// Storage
	shardCount int

	// Observability
	logger     Logger
	metricsSet *metrics.Set
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		bindAddr:       "0.0.0.0",
		port:           6379,
		connectTimeout: 5 * time.Second,
		readTimeout:    30 * time.Second,
		writeTimeout:   10 * time.Second,
		shardCount:     64,
		logger:         &defaultLogger{level: LevelInfo},
	}
}

// addr returns the listen address
func (c *config) addr() string {
	return fmt.Sprintf("%s:%d", c.bindAddr, c.port)
}

// Option represents a configuration option for a Node
type Option func(*config) error

// WithPort sets the TCP port to listen on. Port 0 picks a free port.
//
// Example:
//
//	WithPort(6380)
func WithPort(port int) Option {
	return func(c *config) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("port %d out of range: %w", port, ErrInvalidConfig)
		}
		c.port = port
		return nil
	}
}

// WithBindAddr sets the interface address to listen on
//
// Example:
//
//	WithBindAddr("127.0.0.1")
func WithBindAddr(addr string) Option {
	return func(c *config) error {
		if addr == "" {
			return fmt.Errorf("empty bind address: %w", ErrInvalidConfig)
		}
		c.bindAddr = addr
		return nil
	}
}

// WithReplicaOf makes the node a slave of the master at "host port".
// An empty string keeps the master role.
//
// Example:
//
//	WithReplicaOf("localhost 6379")
func WithReplicaOf(addr string) Option {
	return func(c *config) error {
		if addr == "" {
			c.replicaOf = nil
			return nil
		}
		master, err := replication.ParseMasterAddr(addr)
		if err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalidConfig)
		}
		c.replicaOf = master
		return nil
	}
}

// WithLogger sets a custom logger for the node
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithIdleTimeout closes client connections idle for longer than timeout.
// Zero disables the timeout.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.idleTimeout = timeout
		return nil
	}
}

// WithConnectTimeout sets the timeout for dialing the master
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.connectTimeout = timeout
		return nil
	}
}

// WithReadTimeout sets the read timeout for each handshake reply
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.readTimeout = timeout
		return nil
	}
}

// WithWriteTimeout sets the write timeout for each handshake request
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.writeTimeout = timeout
		return nil
	}
}

// WithShardCount sets the number of storage shards. It is rounded up to
// a power of two.
func WithShardCount(count int) Option {
	return func(c *config) error {
		if count <= 0 {
			return ErrInvalidConfig
		}
		c.shardCount = count
		return nil
	}
}

// WithMetricsSet reports server metrics into set
func WithMetricsSet(set *metrics.Set) Option {
	return func(c *config) error {
		c.metricsSet = set
		return nil
	}
}
