package storage

import "time"

// Entry is a stored value with its optional relative expiry.
//
// An entry whose age exceeds its expiry is logically absent but stays in
// the shard until the key is overwritten.
type Entry struct {
	Data      []byte
	Expiry    time.Duration // zero means no expiry
	CreatedAt time.Time
}

// HasExpiry reports whether the entry was stored with an expiry
func (e *Entry) HasExpiry() bool {
	return e.Expiry > 0
}

// IsExpired returns true if the entry is no longer live at now
func (e *Entry) IsExpired(now time.Time) bool {
	return e.HasExpiry() && now.Sub(e.CreatedAt) > e.Expiry
}

// TTL returns the remaining lifetime at now, or -1 when the entry never expires
func (e *Entry) TTL(now time.Time) time.Duration {
	if !e.HasExpiry() {
		return -1
	}
	remaining := e.Expiry - now.Sub(e.CreatedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
