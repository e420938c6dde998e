// Package cli implements the redis-server command-line interface.
//
// Commands:
//
//   - serve: run a master or slave node
//   - cli: send one command to a server and print the reply
//   - bench: measure SET/GET throughput over a connection pool
//   - info-diff: compare an INFO section of two servers
//   - version: print version information
//
// Flags can also be set through environment variables named
// REDIS_SERVER_<FLAG> (e.g. REDIS_SERVER_LOG_LEVEL=debug), optionally
// loaded from .env and .env.local.
package cli
