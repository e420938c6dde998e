// Package storage provides the key-value store behind the server.
//
// Basic usage:
//
//	store := storage.NewMemory()
//	store.Set("key", []byte("value"), 0)
//	store.Set("session", []byte("abc"), 10*time.Millisecond)
//	value, exists := store.Get("key")
//
// The package supports:
//   - Thread-safe operations over xxhash-selected shards
//   - Relative expiry measured from the time of the write
//   - Lazy expiry: expired keys read as absent until overwritten
//
// Values are copied on write and on read, so callers may reuse their
// buffers.
package storage
