// Package lua provides Redis-compatible Lua script execution.
//
// The Lua execution environment includes:
//   - redis.call() and redis.pcall() for PING, ECHO, GET, SET and EXISTS
//   - redis.status_reply() and redis.error_reply()
//   - the KEYS and ARGV arrays passed from the client
//   - Redis conversion rules between Lua values and replies
//
// Scripts run in a fresh state with only the base, table, string and
// math libraries opened.
package lua
