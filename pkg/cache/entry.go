package cache

import "time"

// Entry is the stored representation of one cached value.
//
// AccessCount and LastAccessed are advisory metadata feeding eviction
// ranking only; correctness depends solely on Timestamp and TTL.
type Entry[T any] struct {
	// Data is the cached value.
	Data T `json:"data"`

	// Timestamp is when the entry was written.
	Timestamp time.Time `json:"timestamp"`

	// TTL is the entry's lifetime from Timestamp.
	TTL time.Duration `json:"ttl"`

	// AccessCount is the number of reads since the entry was written.
	AccessCount int64 `json:"access_count"`

	// LastAccessed is the time of the most recent read.
	LastAccessed time.Time `json:"last_accessed"`
}

// Expired returns true once the entry's lifetime has elapsed.
func (e *Entry[T]) Expired() bool {
	return time.Since(e.Timestamp) > e.TTL
}

// Remaining returns the time until expiry, or 0 if already expired.
func (e *Entry[T]) Remaining() time.Duration {
	remaining := e.TTL - time.Since(e.Timestamp)
	if remaining < 0 {
		return 0
	}
	return remaining
}
