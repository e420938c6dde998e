package lua

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	lua "github.com/yuin/gopher-lua"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// ErrNoScript is returned by EvalSHA for an unknown hash
var ErrNoScript = errors.New("NOSCRIPT No matching script. Please use EVAL")

// Engine provides Redis-compatible Lua script execution
type Engine struct {
	storage storage.Storage
	scripts *xsync.MapOf[string, string] // SHA1 -> script content
}

// NewEngine creates a new Lua execution engine
func NewEngine(storage storage.Storage) *Engine {
	return &Engine{
		storage: storage,
		scripts: xsync.NewMapOf[string, string](),
	}
}

// Eval executes a Lua script with the given keys and arguments and
// returns its result converted to a reply value
func (e *Engine) Eval(script string, keys []string, args []string) (protocol.Value, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openSafeLibs(L)

	// Set up the Redis-compatible environment
	e.setupRedisAPI(L, keys, args)

	// Execute the script
	if err := L.DoString(script); err != nil {
		return protocol.Value{}, fmt.Errorf("script execution error: %w", err)
	}

	if L.GetTop() == 0 {
		return protocol.Null(), nil
	}
	return e.convertLuaValue(L.Get(-1)), nil
}

// EvalSHA executes a previously loaded script by its SHA1 hash
func (e *Engine) EvalSHA(sha1 string, keys []string, args []string) (protocol.Value, error) {
	script, exists := e.scripts.Load(strings.ToLower(sha1))
	if !exists {
		return protocol.Value{}, ErrNoScript
	}

	return e.Eval(script, keys, args)
}

// LoadScript loads a script and returns its SHA1 hash
func (e *Engine) LoadScript(script string) string {
	sum := sha1.Sum([]byte(script))
	hash := hex.EncodeToString(sum[:])
	e.scripts.Store(hash, script)
	return hash
}

// ScriptExists checks if scripts with given SHA1 hashes exist
func (e *Engine) ScriptExists(hashes []string) []bool {
	results := make([]bool, len(hashes))
	for i, hash := range hashes {
		_, results[i] = e.scripts.Load(strings.ToLower(hash))
	}
	return results
}

// ScriptFlush removes all cached scripts
func (e *Engine) ScriptFlush() {
	e.scripts.Clear()
}

// ScriptCount returns the number of cached scripts
func (e *Engine) ScriptCount() int {
	return e.scripts.Size()
}

// openSafeLibs opens the libraries scripts may use. io, os and
// package loading stay closed.
func openSafeLibs(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// setupRedisAPI configures the Lua state with Redis-compatible functions
func (e *Engine) setupRedisAPI(L *lua.LState, keys []string, args []string) {
	// Create KEYS table
	keysTable := L.NewTable()
	for i, key := range keys {
		keysTable.RawSetInt(i+1, lua.LString(key)) // Lua arrays are 1-indexed
	}
	L.SetGlobal("KEYS", keysTable)

	// Create ARGV table
	argvTable := L.NewTable()
	for i, arg := range args {
		argvTable.RawSetInt(i+1, lua.LString(arg))
	}
	L.SetGlobal("ARGV", argvTable)

	redisTable := L.NewTable()
	L.SetFuncs(redisTable, map[string]lua.LGFunction{
		"call":         e.redisCall,
		"pcall":        e.redisPCall,
		"status_reply": redisStatusReply,
		"error_reply":  redisErrorReply,
	})
	L.SetGlobal("redis", redisTable)
}

// redisCall implements redis.call() function
func (e *Engine) redisCall(L *lua.LState) int {
	result, err := e.executeRedisCommand(L)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(e.convertToLuaValue(L, result))
	return 1
}

// redisPCall implements redis.pcall() function (protected call)
func (e *Engine) redisPCall(L *lua.LState) int {
	result, err := e.executeRedisCommand(L)
	if err != nil {
		// Return error as a table with 'err' field
		errTable := L.NewTable()
		errTable.RawSetString("err", lua.LString(err.Error()))
		L.Push(errTable)
		return 1
	}
	L.Push(e.convertToLuaValue(L, result))
	return 1
}

func redisStatusReply(L *lua.LState) int {
	t := L.NewTable()
	t.RawSetString("ok", lua.LString(L.CheckString(1)))
	L.Push(t)
	return 1
}

func redisErrorReply(L *lua.LState) int {
	t := L.NewTable()
	t.RawSetString("err", lua.LString(L.CheckString(1)))
	L.Push(t)
	return 1
}

// executeRedisCommand executes a Redis command from Lua
func (e *Engine) executeRedisCommand(L *lua.LState) (protocol.Value, error) {
	argc := L.GetTop()
	if argc == 0 {
		return protocol.Value{}, fmt.Errorf("ERR wrong number of arguments for redis command")
	}

	cmdName := L.ToString(1)
	if cmdName == "" {
		return protocol.Value{}, fmt.Errorf("ERR command name must be a string")
	}

	args := make([]string, argc-1)
	for i := 2; i <= argc; i++ {
		args[i-2] = L.ToString(i)
	}

	return e.executeCommand(strings.ToUpper(cmdName), args)
}

// executeCommand executes a Redis command against the storage
func (e *Engine) executeCommand(cmd string, args []string) (protocol.Value, error) {
	switch cmd {
	case "PING":
		if len(args) == 0 {
			return protocol.SimpleString("PONG"), nil
		}
		return protocol.BulkStringFromString(args[0]), nil

	case "ECHO":
		if len(args) != 1 {
			return protocol.Value{}, fmt.Errorf("ERR wrong number of arguments for 'echo' command")
		}
		return protocol.BulkStringFromString(args[0]), nil

	case "GET":
		if len(args) != 1 {
			return protocol.Value{}, fmt.Errorf("ERR wrong number of arguments for 'get' command")
		}
		value, exists := e.storage.Get(args[0])
		if !exists {
			return protocol.Null(), nil
		}
		return protocol.BulkString(value), nil

	case "SET":
		if len(args) < 2 || len(args)%2 != 0 {
			return protocol.Value{}, fmt.Errorf("ERR wrong number of arguments for 'set' command")
		}
		var expiry time.Duration
		for i := 2; i < len(args); i += 2 {
			if !strings.EqualFold(args[i], "px") {
				continue
			}
			ms, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil || ms <= 0 {
				return protocol.Value{}, fmt.Errorf("ERR invalid expire time in 'set' command")
			}
			expiry = time.Duration(ms) * time.Millisecond
		}
		e.storage.Set(args[0], []byte(args[1]), expiry)
		return protocol.SimpleString("OK"), nil

	case "EXISTS":
		if len(args) == 0 {
			return protocol.Value{}, fmt.Errorf("ERR wrong number of arguments for 'exists' command")
		}
		var count int64
		for _, key := range args {
			if e.storage.Has(key) {
				count++
			}
		}
		return protocol.Integer(count), nil

	default:
		return protocol.Value{}, fmt.Errorf("ERR unknown or unsupported command '%s'", strings.ToLower(cmd))
	}
}

// convertToLuaValue converts a reply to a Lua value
func (e *Engine) convertToLuaValue(L *lua.LState, value protocol.Value) lua.LValue {
	switch value.Type {
	case protocol.TypeNull:
		return lua.LFalse // Redis nil becomes false in Lua
	case protocol.TypeInteger:
		return lua.LNumber(value.Integer)
	case protocol.TypeBulkString:
		return lua.LString(value.Data)
	case protocol.TypeSimpleString:
		t := L.NewTable()
		t.RawSetString("ok", lua.LString(value.Data))
		return t
	case protocol.TypeError:
		t := L.NewTable()
		t.RawSetString("err", lua.LString(value.Data))
		return t
	case protocol.TypeArray:
		table := L.NewTable()
		for i, item := range value.Array {
			table.RawSetInt(i+1, e.convertToLuaValue(L, item))
		}
		return table
	default:
		return lua.LNil
	}
}

// convertLuaValue converts a Lua value to a reply following the Redis
// conversion rules: numbers truncate to integers, true is 1, false and
// nil are null, tables become arrays up to the first nil.
func (e *Engine) convertLuaValue(lv lua.LValue) protocol.Value {
	switch v := lv.(type) {
	case lua.LBool:
		if v {
			return protocol.Integer(1)
		}
		return protocol.Null()
	case lua.LString:
		return protocol.BulkStringFromString(string(v))
	case lua.LNumber:
		return protocol.Integer(int64(v))
	case *lua.LTable:
		if ok := v.RawGetString("ok"); ok.Type() == lua.LTString {
			return protocol.SimpleString(ok.String())
		}
		if errMsg := v.RawGetString("err"); errMsg.Type() == lua.LTString {
			return protocol.Error(errMsg.String())
		}
		var items []protocol.Value
		for i := 1; ; i++ {
			item := v.RawGetInt(i)
			if item == lua.LNil {
				break
			}
			items = append(items, e.convertLuaValue(item))
		}
		return protocol.Array(items...)
	default:
		return protocol.Null()
	}
}
