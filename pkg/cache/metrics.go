package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks reads served from cache
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchcache_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMisses tracks reads that found nothing usable
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchcache_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheEvictions tracks entries removed by size-cap eviction
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchcache_cache_evictions_total",
			Help: "Total number of entries evicted at the size cap",
		},
	)

	// CachePruned tracks expired or malformed entries removed by Prune
	CachePruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchcache_cache_pruned_total",
			Help: "Total number of expired entries removed by prune",
		},
	)

	// CacheBackendErrors tracks storage failures by operation. These
	// degrade to miss/no-op behavior but are kept visible here so a
	// broken backend is distinguishable from a cold cache.
	CacheBackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchcache_cache_backend_errors_total",
			Help: "Total number of cache backend failures",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear", "keys"
	)
)
