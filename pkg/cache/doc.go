// Package cache provides a generic TTL cache manager over pluggable
// string backends.
//
// The manager implements best-effort, single-process caching with the
// following features:
//
// - Lazy expiry on read plus an explicit Prune sweep
// - Access-count and recency tracking per entry
// - Approximate-LRU eviction when a size cap is reached
// - Hit/miss/set/delete statistics with derived hit rate
// - Get-or-compute-and-store with optional request coalescing
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	// In-process cache with defaults (5m TTL, 1000 entries)
//	users := cache.New[User](backend.NewMemory(), cache.Options{})
//
//	users.Set(ctx, "user:42", user, 0) // 0 = default TTL
//
//	if u, ok := users.Get(ctx, "user:42"); ok {
//		// cache hit
//	}
//
// # Get-Or-Compute
//
//	profile, err := users.GetOrSet(ctx, "user:42", func(ctx context.Context) (User, error) {
//		return loadUser(ctx, 42)
//	}, 10*time.Minute)
//
// Without Options.Coalesce, two concurrent GetOrSet calls for the same
// cold key both invoke the factory and the last write wins. With
// Coalesce they share one in-flight invocation.
//
// # Backends
//
// Any backend.Backend works: process memory, a cache directory on
// disk, or a shared Redis instance partitioned by key prefix. Backend
// failures are swallowed at this layer (reads degrade to misses,
// writes to no-ops) and surface only through the
// fetchcache_cache_backend_errors_total metric and warn logs.
//
// # Statistics
//
//	stats := users.Stats(ctx)
//	// stats.HitRate == hits / (hits + misses), 0 before any read
//
// Statistics are per-manager; the Prometheus counters in this package
// aggregate across all managers in the process.
package cache
