// Package server provides the Redis protocol server.
//
// Each connection is served by its own goroutine that reads requests,
// executes them in arrival order and writes one reply per request.
//
// Supported commands:
//   - PING, ECHO, GET, SET key value [PX ms]
//   - INFO [replication|server|keyspace|all]
//   - REPLCONF listening-port and capa, PSYNC ? -1 (master side)
//   - EVAL, EVALSHA, SCRIPT LOAD|EXISTS|FLUSH
//   - QUIT, COMMAND
//
// Command names are case-insensitive. Unknown commands and malformed
// requests get an error reply and the connection stays open. Malformed
// wire bytes and REPLCONF sequence violations get an error reply and
// the connection is closed.
//
// The server is compatible with Redis clients like github.com/redis/go-redis.
package server
