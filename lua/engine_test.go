package lua

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

func TestLuaEngine_BasicExecution(t *testing.T) {
	// Create storage and engine
	stor := storage.NewMemory()
	engine := NewEngine(stor)

	tests := []struct {
		name     string
		script   string
		keys     []string
		args     []string
		expected protocol.Value
	}{
		{
			name:     "simple return",
			script:   "return 'hello'",
			expected: protocol.BulkStringFromString("hello"),
		},
		{
			name:     "return number",
			script:   "return 42",
			expected: protocol.Integer(42),
		},
		{
			name:     "access KEYS",
			script:   "return KEYS[1]",
			keys:     []string{"mykey"},
			expected: protocol.BulkStringFromString("mykey"),
		},
		{
			name:     "access ARGV",
			script:   "return ARGV[1]",
			args:     []string{"myarg"},
			expected: protocol.BulkStringFromString("myarg"),
		},
		{
			name:     "concatenate KEYS and ARGV",
			script:   "return KEYS[1] .. ':' .. ARGV[1]",
			keys:     []string{"user"},
			args:     []string{"123"},
			expected: protocol.BulkStringFromString("user:123"),
		},
		{
			name:     "no return value",
			script:   "local x = 1",
			expected: protocol.Null(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Eval(tt.script, tt.keys, tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.Equal(tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestLuaEngine_RedisCommands(t *testing.T) {
	stor := storage.NewMemory()
	engine := NewEngine(stor)

	stor.Set("existing", []byte("value"), 0)

	tests := []struct {
		name     string
		script   string
		keys     []string
		args     []string
		expected protocol.Value
	}{
		{
			name:     "GET existing key",
			script:   "return redis.call('GET', KEYS[1])",
			keys:     []string{"existing"},
			expected: protocol.BulkStringFromString("value"),
		},
		{
			name:     "GET missing key is false",
			script:   "return redis.call('GET', KEYS[1]) == false",
			keys:     []string{"missing"},
			expected: protocol.Integer(1),
		},
		{
			name:     "SET then GET",
			script:   "redis.call('SET', KEYS[1], ARGV[1]); return redis.call('GET', KEYS[1])",
			keys:     []string{"luakey"},
			args:     []string{"luavalue"},
			expected: protocol.BulkStringFromString("luavalue"),
		},
		{
			name:     "SET returns status",
			script:   "return redis.call('set', KEYS[1], ARGV[1])",
			keys:     []string{"k"},
			args:     []string{"v"},
			expected: protocol.SimpleString("OK"),
		},
		{
			name:     "EXISTS counts keys",
			script:   "return redis.call('EXISTS', 'existing', 'missing', 'existing')",
			expected: protocol.Integer(2),
		},
		{
			name:     "PING",
			script:   "return redis.call('PING')",
			expected: protocol.SimpleString("PONG"),
		},
		{
			name:     "ECHO",
			script:   "return redis.call('ECHO', 'hi')",
			expected: protocol.BulkStringFromString("hi"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Eval(tt.script, tt.keys, tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.Equal(tt.expected) {
				t.Errorf("expected %v (%s), got %v (%s)", tt.expected, tt.expected.Type, result, result.Type)
			}
		})
	}
}

func TestLuaEngine_SetWithExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stor := storage.NewMemory(storage.WithClock(func() time.Time { return now }))
	engine := NewEngine(stor)

	if _, err := engine.Eval("return redis.call('SET', KEYS[1], 'v', 'PX', '10')", []string{"k"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stor.Has("k") {
		t.Fatal("expected key to exist")
	}

	now = now.Add(11 * time.Millisecond)
	if stor.Has("k") {
		t.Error("expected key to expire")
	}

	if _, err := engine.Eval("return redis.call('SET', 'k', 'v', 'PX', 'soon')", nil, nil); err == nil {
		t.Error("expected error for invalid PX")
	}
}

func TestLuaEngine_RedisPCall(t *testing.T) {
	stor := storage.NewMemory()
	engine := NewEngine(stor)

	result, err := engine.Eval("return redis.pcall('SET', 'pcallkey', 'value')", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsSimpleString("OK") {
		t.Errorf("expected +OK, got %v", result)
	}

	// pcall turns command errors into an error reply instead of aborting
	result, err = engine.Eval("return redis.pcall('INVALIDCMD')", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError() || !strings.Contains(result.Error(), "unknown") {
		t.Errorf("expected error reply, got %v", result)
	}
}

func TestLuaEngine_StatusAndErrorReply(t *testing.T) {
	engine := NewEngine(storage.NewMemory())

	result, err := engine.Eval("return redis.status_reply('DONE')", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsSimpleString("DONE") {
		t.Errorf("expected +DONE, got %v", result)
	}

	result, err = engine.Eval("return redis.error_reply('ERR custom')", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError() || result.Error() != "ERR custom" {
		t.Errorf("expected -ERR custom, got %v", result)
	}
}

func TestLuaEngine_ScriptCaching(t *testing.T) {
	stor := storage.NewMemory()
	engine := NewEngine(stor)

	script := "return 'cached script'"

	// Load script and get SHA
	sha := engine.LoadScript(script)
	if len(sha) != 40 { // SHA1 is 40 characters in hex
		t.Errorf("expected SHA1 length 40, got %d", len(sha))
	}

	// Execute using EVALSHA, hashes are case-insensitive
	for _, hash := range []string{sha, strings.ToUpper(sha)} {
		result, err := engine.EvalSHA(hash, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.String() != "cached script" {
			t.Errorf("expected 'cached script', got %v", result)
		}
	}

	// Try to execute non-existent script
	if _, err := engine.EvalSHA("nonexistent", nil, nil); !errors.Is(err, ErrNoScript) {
		t.Errorf("expected ErrNoScript, got %v", err)
	}
}

func TestLuaEngine_ScriptExistsAndFlush(t *testing.T) {
	engine := NewEngine(storage.NewMemory())

	sha1 := engine.LoadScript("return 1")
	sha2 := engine.LoadScript("return 2")

	results := engine.ScriptExists([]string{sha1, sha2, "nonexistent"})
	expected := []bool{true, true, false}
	for i, result := range results {
		if result != expected[i] {
			t.Errorf("position %d: expected %t, got %t", i, expected[i], result)
		}
	}
	if engine.ScriptCount() != 2 {
		t.Errorf("ScriptCount() = %d, want 2", engine.ScriptCount())
	}

	engine.ScriptFlush()

	if engine.ScriptExists([]string{sha1})[0] {
		t.Error("script should not exist after flush")
	}
	if engine.ScriptCount() != 0 {
		t.Errorf("ScriptCount() = %d, want 0", engine.ScriptCount())
	}
}

func TestLuaEngine_DataTypeConversion(t *testing.T) {
	engine := NewEngine(storage.NewMemory())

	tests := []struct {
		name     string
		script   string
		expected protocol.Value
	}{
		{"nil", "return nil", protocol.Null()},
		{"true", "return true", protocol.Integer(1)},
		{"false", "return false", protocol.Null()},
		{"string", "return 'hello world'", protocol.BulkStringFromString("hello world")},
		{"integer", "return 123", protocol.Integer(123)},
		{"float truncates", "return 123.456", protocol.Integer(123)},
		{"array", "return {1, 2, 3}", protocol.Array(protocol.Integer(1), protocol.Integer(2), protocol.Integer(3))},
		{"array stops at nil", "return {1, nil, 3}", protocol.Array(protocol.Integer(1))},
		{"nested array", "return {'a', {'b'}}", protocol.Array(
			protocol.BulkStringFromString("a"),
			protocol.Array(protocol.BulkStringFromString("b")),
		)},
		{"empty table", "return {}", protocol.Array()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Eval(tt.script, nil, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.Equal(tt.expected) {
				t.Errorf("expected %v (%s), got %v (%s)", tt.expected, tt.expected.Type, result, result.Type)
			}
		})
	}
}

func TestLuaEngine_ErrorHandling(t *testing.T) {
	engine := NewEngine(storage.NewMemory())

	tests := []struct {
		name   string
		script string
	}{
		{"syntax error", "invalid lua syntax !!!"},
		{"redis.call with invalid args", "return redis.call()"},
		{"redis.call with unknown command", "return redis.call('UNKNOWNCMD')"},
		{"redis.call with wrong arity", "return redis.call('GET')"},
		{"os is unavailable", "return os.time()"},
		{"io is unavailable", "return io.read()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Eval(tt.script, nil, nil); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}
