// Package redisserver provides an in-memory Redis-compatible server
// with master/slave replication bootstrap.
//
// A Node owns a sharded key-value store with lazy expiry, the replication
// state (role, replication id and offset, registered slaves) and a RESP
// server that serves both over TCP.
//
// Basic usage:
//
//	node, err := redisserver.New(
//		redisserver.WithPort(6379),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer node.Close()
//
//	if err := node.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// A slave is created with WithReplicaOf("<host> <port>"). Start then
// connects to the master and performs the PING, REPLCONF, PSYNC
// handshake, adopting the master's replication id:
//
//	replica, err := redisserver.New(
//		redisserver.WithPort(6380),
//		redisserver.WithReplicaOf("localhost 6379"),
//	)
//
// The server supports:
//
//   - PING, ECHO, GET, SET with PX expiry
//   - INFO with replication, server and keyspace sections
//   - REPLCONF and PSYNC on the master side
//   - Lua scripting with EVAL, EVALSHA and SCRIPT
//   - Prometheus metrics through github.com/VictoriaMetrics/metrics
//
// Writes are not propagated to slaves after the handshake, and nothing is
// persisted to disk.
package redisserver
