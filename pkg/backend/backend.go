// Package backend provides the raw key/value stores a cache manager
// delegates to. All implementations operate on plain strings;
// serialization is the caller's responsibility.
package backend

import "context"

// Backend is the capability contract for a raw string store.
//
// Get reports absence via ok=false. A non-nil error means the store
// itself is unavailable (connection lost, disk failure), which is a
// different condition than a plain miss and must not be conflated by
// implementations.
type Backend interface {
	// Get returns the raw value for key, or ok=false if absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key owned by this backend. Backends sharing
	// external storage remove only their own partition.
	Clear(ctx context.Context) error

	// Keys returns all keys currently known to this backend.
	Keys(ctx context.Context) ([]string, error)
}
