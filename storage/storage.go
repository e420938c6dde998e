package storage

import (
	"time"
)

// Storage defines the key-value operations the command layer needs
type Storage interface {
	// Set stores value under key, replacing any previous entry and its
	// expiry. expiry <= 0 stores the key without expiry. It returns the
	// previous live value, if any.
	Set(key string, value []byte, expiry time.Duration) ([]byte, bool)

	// Get returns a copy of the live value stored under key
	Get(key string) ([]byte, bool)

	// Has reports whether key holds a live value
	Has(key string) bool

	// Len returns the number of live keys
	Len() int64

	// Close releases the storage
	Close() error
}

// Stats is a point-in-time summary of the storage contents
type Stats struct {
	Keys        int64 // live keys
	Expires     int64 // live keys with an expiry
	ExpiredHeld int64 // expired entries still held until overwrite
}
