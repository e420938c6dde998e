package redisserver

import (
	"context"
	"sync"

	"github.com/raniellyferreira/redis-inmemory-server/replication"
	"github.com/raniellyferreira/redis-inmemory-server/server"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// Node is one in-memory Redis server process: the store, the
// replication state and the protocol server that serves both.
type Node struct {
	// Configuration
	config *config

	// Components
	storage *storage.MemoryStorage
	state   *replication.State
	server  *server.Server
	replica *replication.Client

	// State
	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a new Node with the given options
//
// The node is created but not started. Use Start() to listen for clients
// and, for a slave, to perform the replication handshake.
//
// Example:
//
//	node, err := redisserver.New(
//		redisserver.WithPort(6380),
//		redisserver.WithReplicaOf("localhost 6379"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
func New(opts ...Option) (*Node, error) {
	cfg := defaultConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	stor := storage.NewMemory(storage.WithShardCount(cfg.shardCount))
	state := replication.NewState(replication.Config{ReplicaOf: cfg.replicaOf})

	serverOpts := []server.Option{
		server.WithReplication(state),
		server.WithLogger(&loggerAdapter{logger: cfg.logger}),
		server.WithIdleTimeout(cfg.idleTimeout),
	}
	if cfg.metricsSet != nil {
		serverOpts = append(serverOpts, server.WithMetricsSet(cfg.metricsSet))
	}

	return &Node{
		config:  cfg,
		storage: stor,
		state:   state,
		server:  server.NewServer(cfg.addr(), stor, serverOpts...),
	}, nil
}

// Start listens for clients. A slave then connects to its master and
// performs the replication handshake using the port it actually bound;
// if the handshake fails the listener is closed and the error returned.
//
// Example:
//
//	if err := node.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}

	if err := n.server.Start(); err != nil {
		n.config.logger.Error("Failed to start server", Field{Key: "error", Value: err}, Field{Key: "addr", Value: n.config.addr()})
		return err
	}
	n.started = true

	info := n.state.Info()
	n.config.logger.Info("Server started",
		Field{Key: "addr", Value: n.server.Addr()},
		Field{Key: "role", Value: info.Role.String()},
		Field{Key: "replid", Value: info.ReplID})

	if info.Role != replication.RoleSlave {
		return nil
	}

	replica := replication.NewClient(n.state, n.server.Port())
	replica.SetLogger(&loggerAdapter{logger: n.config.logger})
	replica.SetConnectTimeout(n.config.connectTimeout)
	replica.SetReadTimeout(n.config.readTimeout)
	replica.SetWriteTimeout(n.config.writeTimeout)

	if err := replica.Start(ctx); err != nil {
		n.server.Stop()
		n.storage.Close()
		n.closed = true
		return &ConnectionError{Addr: n.state.Master().String(), Err: err}
	}
	n.replica = replica

	return nil
}

// Close stops the replication client and the server. It is safe to call
// more than once.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	if n.replica != nil {
		if err := n.replica.Stop(); err != nil {
			n.config.logger.Debug("Closing master connection failed", Field{Key: "error", Value: err})
		}
	}

	if err := n.server.Stop(); err != nil {
		return err
	}
	return n.storage.Close()
}

// Addr returns the address the server listens on
func (n *Node) Addr() string {
	return n.server.Addr()
}

// Storage returns the node's key-value store
func (n *Node) Storage() storage.Storage {
	return n.storage
}

// Replication returns the node's replication state
func (n *Node) Replication() *replication.State {
	return n.state
}

// ReplicationStats returns the slave-side handshake statistics. The zero
// value is returned for a master.
func (n *Node) ReplicationStats() replication.ReplicationStats {
	n.mu.Lock()
	replica := n.replica
	n.mu.Unlock()

	if replica == nil {
		return replication.ReplicationStats{}
	}
	return replica.Stats()
}

// Server returns the protocol server
func (n *Node) Server() *server.Server {
	return n.server
}
