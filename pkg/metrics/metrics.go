// Package metrics provides the centralized Prometheus metrics registry.
// All metrics are defined in their respective packages (cache, client) to
// maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry. All metrics are
// automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - fetchcache_cache_hits_total (Counter): Reads served from cache
//   - fetchcache_cache_misses_total (Counter): Reads that found nothing usable
//   - fetchcache_cache_evictions_total (Counter): Entries removed at the size cap
//   - fetchcache_cache_pruned_total (Counter): Expired entries removed by prune
//   - fetchcache_cache_backend_errors_total{operation} (Counter): Backend failures
//     degraded to miss/no-op, by operation (get, set, delete, clear, keys)
//
// Request Metrics (pkg/client):
//   - fetchcache_requests_total{method, status} (Counter): Requests by method and HTTP status
//   - fetchcache_request_duration_seconds{method} (Histogram): Request duration by method
//   - fetchcache_errors_total{class} (Counter): Failures by class (client, server, timeout, network)
//
// Retry Metrics (pkg/client):
//   - fetchcache_request_retries_total (Counter): Retry attempts
//   - fetchcache_retry_backoff_seconds (Histogram): Backoff waits between attempts
//   - fetchcache_retry_exhausted_total (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(fetchcache_cache_hits_total[5m])) /
//   (sum(rate(fetchcache_cache_hits_total[5m])) + sum(rate(fetchcache_cache_misses_total[5m])))
//
//   # Broken Backend Detection
//   rate(fetchcache_cache_backend_errors_total[5m]) > 0
//
//   # Request Error Rate
//   rate(fetchcache_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(fetchcache_request_duration_seconds_bucket[5m]))
