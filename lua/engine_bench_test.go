package lua

import (
	"testing"

	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

func BenchmarkLuaEngine_SimpleScript(b *testing.B) {
	engine := NewEngine(storage.NewMemory())
	script := "return 'hello world'"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Eval(script, nil, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLuaEngine_RedisCommands(b *testing.B) {
	engine := NewEngine(storage.NewMemory())
	script := "redis.call('SET', KEYS[1], ARGV[1]); return redis.call('GET', KEYS[1])"
	keys := []string{"benchkey"}
	args := []string{"benchvalue"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Eval(script, keys, args); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLuaEngine_EvalSHA(b *testing.B) {
	engine := NewEngine(storage.NewMemory())
	sha := engine.LoadScript("return 'cached script'")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.EvalSHA(sha, nil, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLuaEngine_ParallelExecution(b *testing.B) {
	engine := NewEngine(storage.NewMemory())
	script := "return redis.call('GET', KEYS[1])"
	keys := []string{"key"}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := engine.Eval(script, keys, nil); err != nil {
				b.Fatal(err)
			}
		}
	})
}
