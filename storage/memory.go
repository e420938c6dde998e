package storage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// shard represents a single shard of data with its own lock
type shard struct {
	mu   sync.RWMutex
	data map[string]*Entry
}

// MemoryStorage implements an in-memory storage engine.
//
// Expiry is lazy: an expired entry reads as absent and is only replaced
// when the key is written again. There is no background sweeper and no
// eviction.
type MemoryStorage struct {
	shards    []shard
	shardMask uint64
	now       func() time.Time
	closed    atomic.Bool
}

// MemoryOption is a function that configures a MemoryStorage instance
type MemoryOption func(*MemoryStorage)

// WithShardCount sets the number of shards for the storage
// The number is automatically rounded up to the next power of 2
func WithShardCount(count int) MemoryOption {
	return func(s *MemoryStorage) {
		if count > 0 {
			n := nextPowerOf2(count)
			s.shards = make([]shard, n)
			s.shardMask = uint64(n - 1)
		}
	}
}

// WithClock replaces the time source used for expiry checks
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemory creates a new in-memory storage instance with default number of shards (64)
func NewMemory(opts ...MemoryOption) *MemoryStorage {
	s := &MemoryStorage{
		shards:    make([]shard, 64),
		shardMask: 63,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	for i := range s.shards {
		s.shards[i].data = make(map[string]*Entry)
	}

	return s
}

// nextPowerOf2 returns the next power of 2 >= n
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// shardFor returns the shard owning key
func (s *MemoryStorage) shardFor(key string) *shard {
	return &s.shards[xxhash.Sum64String(key)&s.shardMask]
}

// ShardCount returns the number of shards
func (s *MemoryStorage) ShardCount() int {
	return len(s.shards)
}

// Get retrieves a copy of the live value stored under key
func (s *MemoryStorage) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	now := s.now()

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	entry, exists := sh.data[key]
	if !exists || entry.IsExpired(now) {
		return nil, false
	}

	result := make([]byte, len(entry.Data))
	copy(result, entry.Data)
	return result, true
}

// Set stores a value with an optional relative expiry.
// A new write always replaces the previous expiry.
func (s *MemoryStorage) Set(key string, value []byte, expiry time.Duration) ([]byte, bool) {
	if expiry < 0 {
		expiry = 0
	}

	sh := s.shardFor(key)
	now := s.now()

	entry := &Entry{
		Data:      append([]byte{}, value...),
		Expiry:    expiry,
		CreatedAt: now,
	}

	sh.mu.Lock()
	prev, exists := sh.data[key]
	sh.data[key] = entry
	sh.mu.Unlock()

	if !exists || prev.IsExpired(now) {
		return nil, false
	}
	return prev.Data, true
}

// Has reports whether key holds a live value
func (s *MemoryStorage) Has(key string) bool {
	sh := s.shardFor(key)
	now := s.now()

	sh.mu.RLock()
	entry, exists := sh.data[key]
	sh.mu.RUnlock()

	return exists && !entry.IsExpired(now)
}

// TTL returns the remaining lifetime of key, -1 if it has no expiry and
// -2 if it does not exist, in Redis convention.
func (s *MemoryStorage) TTL(key string) time.Duration {
	sh := s.shardFor(key)
	now := s.now()

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	entry, exists := sh.data[key]
	if !exists || entry.IsExpired(now) {
		return -2
	}
	return entry.TTL(now)
}

// Len returns the number of live keys
func (s *MemoryStorage) Len() int64 {
	return s.Stats().Keys
}

// Stats walks every shard and summarizes its entries
func (s *MemoryStorage) Stats() Stats {
	now := s.now()
	var stats Stats

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, entry := range sh.data {
			switch {
			case entry.IsExpired(now):
				stats.ExpiredHeld++
			case entry.HasExpiry():
				stats.Keys++
				stats.Expires++
			default:
				stats.Keys++
			}
		}
		sh.mu.RUnlock()
	}

	return stats
}

// Close releases the storage contents
func (s *MemoryStorage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.data = make(map[string]*Entry)
		sh.mu.Unlock()
	}
	return nil
}
