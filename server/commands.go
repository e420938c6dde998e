package server

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/lua"
	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// executeCommand executes a Redis command. Names arrive upper-cased.
func (c *Client) executeCommand(cmd *protocol.Command) {
	switch cmd.Name {
	case "PING":
		c.handlePing(cmd)
	case "ECHO":
		c.handleEcho(cmd)
	case "GET":
		c.handleGet(cmd)
	case "SET":
		c.handleSet(cmd)
	case "INFO":
		c.handleInfo(cmd)
	case "REPLCONF":
		c.handleReplconf(cmd)
	case "PSYNC":
		c.handlePsync(cmd)
	case "EVAL":
		c.handleEval(cmd)
	case "EVALSHA":
		c.handleEvalSHA(cmd)
	case "SCRIPT":
		c.handleScript(cmd)
	case "COMMAND":
		c.writeValue(protocol.Array())
	case "QUIT":
		c.writeString("OK")
		c.closing = true
	default:
		c.writeError(fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(cmd.Name)))
	}
}

func wrongArgs(name string) string {
	return fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name))
}

// Command handlers

func (c *Client) handlePing(cmd *protocol.Command) {
	if len(cmd.Args) == 0 {
		c.writeString("PONG")
	} else if len(cmd.Args) == 1 {
		c.writeBulkString(cmd.Args[0])
	} else {
		c.writeError(wrongArgs(cmd.Name))
	}
}

func (c *Client) handleEcho(cmd *protocol.Command) {
	if len(cmd.Args) != 1 {
		c.writeError(wrongArgs(cmd.Name))
		return
	}
	c.writeBulkString(cmd.Args[0])
}

func (c *Client) handleGet(cmd *protocol.Command) {
	if len(cmd.Args) != 1 {
		c.writeError(wrongArgs(cmd.Name))
		return
	}

	value, exists := c.server.storage.Get(string(cmd.Args[0]))
	if !exists {
		c.writeNull()
	} else {
		c.writeBulkString(value)
	}
}

// setOptions holds the parsed trailing options of SET
type setOptions struct {
	expiry  time.Duration
	ignored []string
}

// parseSetOptions scans option/value pairs after key and value. Only PX
// is consumed; other option names are collected and ignored.
func parseSetOptions(args [][]byte) (setOptions, error) {
	var opts setOptions
	if len(args)%2 != 0 {
		return opts, errors.New(wrongArgs("set"))
	}

	for i := 0; i < len(args); i += 2 {
		name := string(args[i])
		if !strings.EqualFold(name, "px") {
			opts.ignored = append(opts.ignored, name)
			continue
		}

		ms, err := strconv.ParseInt(string(args[i+1]), 10, 64)
		if err != nil {
			return opts, errors.New("ERR value is not an integer or out of range")
		}
		if ms <= 0 {
			return opts, errors.New("ERR invalid expire time in 'set' command")
		}
		opts.expiry = time.Duration(ms) * time.Millisecond
	}

	return opts, nil
}

func (c *Client) handleSet(cmd *protocol.Command) {
	if len(cmd.Args) < 2 {
		c.writeError(wrongArgs(cmd.Name))
		return
	}

	opts, err := parseSetOptions(cmd.Args[2:])
	if err != nil {
		c.writeError(err.Error())
		return
	}
	if len(opts.ignored) > 0 {
		c.server.logger.Debug("Ignoring SET options", "id", c.id, "options", opts.ignored)
	}

	c.server.storage.Set(string(cmd.Args[0]), cmd.Args[1], opts.expiry)
	c.writeString("OK")
}

func (c *Client) handleInfo(cmd *protocol.Command) {
	if len(cmd.Args) > 1 {
		c.writeError(wrongArgs(cmd.Name))
		return
	}

	section := "replication"
	if len(cmd.Args) == 1 {
		section = strings.ToLower(string(cmd.Args[0]))
	}

	var sections []string
	switch section {
	case "replication":
		sections = []string{c.server.repl.Section()}
	case "server":
		sections = []string{c.server.serverSection()}
	case "keyspace":
		sections = []string{c.server.keyspaceSection()}
	case "all", "everything", "default":
		sections = []string{
			c.server.serverSection(),
			c.server.repl.Section(),
			c.server.keyspaceSection(),
		}
	}

	text := strings.Join(sections, "\n")
	c.writeBulkString([]byte(strings.ReplaceAll(text, "\n", protocol.CRLF)))
}

// serverSection renders the INFO server section
func (s *Server) serverSection() string {
	var uptime int64
	if !s.startTime.IsZero() {
		uptime = int64(time.Since(s.startTime).Seconds())
	}

	var b strings.Builder
	b.WriteString("# Server\n")
	fmt.Fprintf(&b, "redis_version:%s\n", RedisVersion)
	fmt.Fprintf(&b, "go_version:%s\n", runtime.Version())
	fmt.Fprintf(&b, "process_id:%d\n", pid)
	fmt.Fprintf(&b, "tcp_port:%d\n", s.Port())
	fmt.Fprintf(&b, "uptime_in_seconds:%d\n", uptime)
	fmt.Fprintf(&b, "connected_clients:%d\n", s.clients.Size())
	fmt.Fprintf(&b, "total_connections_received:%d\n", s.connCount.Load())
	fmt.Fprintf(&b, "total_commands_processed:%d\n", s.commandCount.Load())
	return b.String()
}

// keyspaceSection renders the INFO keyspace section
func (s *Server) keyspaceSection() string {
	var b strings.Builder
	b.WriteString("# Keyspace\n")

	if ms, ok := s.storage.(*storage.MemoryStorage); ok {
		stats := ms.Stats()
		if stats.Keys > 0 {
			fmt.Fprintf(&b, "db0:keys=%d,expires=%d\n", stats.Keys, stats.Expires)
		}
		return b.String()
	}

	if n := s.storage.Len(); n > 0 {
		fmt.Fprintf(&b, "db0:keys=%d\n", n)
	}
	return b.String()
}

// handleReplconf handles the replica registration messages. A sequence
// violation closes the connection after the error reply.
func (c *Client) handleReplconf(cmd *protocol.Command) {
	if len(cmd.Args) < 2 || len(cmd.Args)%2 != 0 {
		c.writeError(wrongArgs(cmd.Name))
		return
	}

	switch strings.ToLower(string(cmd.Args[0])) {
	case "listening-port":
		if len(cmd.Args) != 2 {
			c.writeError(wrongArgs(cmd.Name))
			return
		}
		port, err := strconv.ParseUint(string(cmd.Args[1]), 10, 16)
		if err != nil {
			c.failRegistration(fmt.Errorf("invalid listening port %q", cmd.Args[1]))
			return
		}
		if err := c.registration.ListeningPort(uint16(port)); err != nil {
			c.failRegistration(err)
			return
		}

	case "capa":
		if err := c.registration.Capabilities(cmd.Args); err != nil {
			c.failRegistration(err)
			return
		}
		c.server.logger.Info("Replica registered",
			"id", c.id,
			"remote", c.conn.RemoteAddr().String(),
			"slaves", c.server.repl.Info().ConnectedSlaves)
	}

	c.writeString("OK")
}

func (c *Client) failRegistration(err error) {
	c.server.logger.Error("Replica registration failed", "id", c.id, "error", err)
	c.writeError("ERR " + err.Error())
	c.closing = true
}

func (c *Client) handlePsync(cmd *protocol.Command) {
	if len(cmd.Args) != 2 {
		c.writeError(wrongArgs(cmd.Name))
		return
	}

	offset, err := strconv.ParseInt(string(cmd.Args[1]), 10, 64)
	if err != nil {
		c.writeError("ERR value is not an integer or out of range")
		return
	}

	reply, err := c.server.repl.FullResyncReply(string(cmd.Args[0]), offset)
	if err != nil {
		c.writeError("ERR " + err.Error())
		return
	}

	c.server.logger.Info("Full resync requested", "id", c.id, "reply", reply.String())
	c.writeValue(reply)
}

// parseScriptArgs splits numkeys key... arg... as used by EVAL and EVALSHA
func parseScriptArgs(args [][]byte) (keys []string, argv []string, err error) {
	numKeys, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return nil, nil, errors.New("ERR value is not an integer or out of range")
	}

	if numKeys < 0 || len(args)-1 < numKeys {
		return nil, nil, errors.New("ERR Number of keys can't be negative or greater than args")
	}

	keys = make([]string, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = string(args[1+i])
	}

	argv = make([]string, len(args)-1-numKeys)
	for i := range argv {
		argv[i] = string(args[1+numKeys+i])
	}
	return keys, argv, nil
}

func (c *Client) handleEval(cmd *protocol.Command) {
	if len(cmd.Args) < 2 {
		c.writeError(wrongArgs(cmd.Name))
		return
	}

	keys, args, err := parseScriptArgs(cmd.Args[1:])
	if err != nil {
		c.writeError(err.Error())
		return
	}

	result, err := c.server.lua.Eval(string(cmd.Args[0]), keys, args)
	if err != nil {
		c.writeError(fmt.Sprintf("ERR %v", err))
		return
	}

	c.writeValue(result)
}

func (c *Client) handleEvalSHA(cmd *protocol.Command) {
	if len(cmd.Args) < 2 {
		c.writeError(wrongArgs(cmd.Name))
		return
	}

	keys, args, err := parseScriptArgs(cmd.Args[1:])
	if err != nil {
		c.writeError(err.Error())
		return
	}

	result, err := c.server.lua.EvalSHA(string(cmd.Args[0]), keys, args)
	if errors.Is(err, lua.ErrNoScript) {
		c.writeError(err.Error())
		return
	}
	if err != nil {
		c.writeError(fmt.Sprintf("ERR %v", err))
		return
	}

	c.writeValue(result)
}

func (c *Client) handleScript(cmd *protocol.Command) {
	if len(cmd.Args) == 0 {
		c.writeError(wrongArgs(cmd.Name))
		return
	}

	subCmd := strings.ToUpper(string(cmd.Args[0]))

	switch subCmd {
	case "LOAD":
		if len(cmd.Args) != 2 {
			c.writeError("ERR wrong number of arguments for 'script load' command")
			return
		}
		sha := c.server.lua.LoadScript(string(cmd.Args[1]))
		c.writeBulkString([]byte(sha))

	case "EXISTS":
		if len(cmd.Args) < 2 {
			c.writeError("ERR wrong number of arguments for 'script exists' command")
			return
		}
		hashes := make([]string, len(cmd.Args)-1)
		for i := 1; i < len(cmd.Args); i++ {
			hashes[i-1] = string(cmd.Args[i])
		}

		results := c.server.lua.ScriptExists(hashes)
		values := make([]protocol.Value, len(results))
		for i, exists := range results {
			if exists {
				values[i] = protocol.Integer(1)
			} else {
				values[i] = protocol.Integer(0)
			}
		}
		c.writeValue(protocol.Array(values...))

	case "FLUSH":
		if len(cmd.Args) > 2 {
			c.writeError("ERR wrong number of arguments for 'script flush' command")
			return
		}
		c.server.lua.ScriptFlush()
		c.writeString("OK")

	default:
		c.writeError(fmt.Sprintf("ERR unknown SCRIPT subcommand '%s'", subCmd))
	}
}
