package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nutrikit/fetchcache/pkg/backend"
	"github.com/nutrikit/fetchcache/pkg/logging"
)

const (
	// DefaultTTL is the entry lifetime used when none is configured.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxSize is the entry cap used when none is configured.
	DefaultMaxSize = 1000

	// evictionDivisor controls how much of the cache one eviction pass
	// reclaims: 1/10th of the stored entries, at least one.
	evictionDivisor = 10
)

// Options configures a Manager.
type Options struct {
	// TTL is the default entry lifetime. Zero means DefaultTTL.
	TTL time.Duration

	// MaxSize is the entry count at which writes trigger eviction.
	// Zero means DefaultMaxSize.
	MaxSize int

	// Coalesce makes concurrent GetOrSet calls for the same key share
	// a single factory invocation. When false (the default) concurrent
	// callers may each invoke the factory and the last write wins.
	Coalesce bool
}

// Stats is a snapshot of a manager's counters.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Sets    uint64  `json:"sets"`
	Deletes uint64  `json:"deletes"`
	HitRate float64 `json:"hit_rate"`
	Size    int     `json:"size"`
}

// Manager is a TTL cache over a raw string backend. Values are JSON
// serialized into the backend; the backend decides where the bytes
// live (process memory, disk, Redis).
//
// Each Manager exclusively owns its backend instance. Backend failures
// never surface to callers: reads degrade to misses, writes to no-ops,
// and the failure is counted in CacheBackendErrors.
type Manager[T any] struct {
	backend  backend.Backend
	ttl      time.Duration
	maxSize  int
	coalesce bool
	logger   zerolog.Logger

	mu      sync.Mutex
	hits    uint64
	misses  uint64
	sets    uint64
	deletes uint64

	group singleflight.Group
}

// New creates a cache manager over the given backend.
func New[T any](b backend.Backend, opts Options) *Manager[T] {
	if b == nil {
		panic("backend cannot be nil")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}

	return &Manager[T]{
		backend:  b,
		ttl:      opts.TTL,
		maxSize:  opts.MaxSize,
		coalesce: opts.Coalesce,
		logger:   logging.NewLogger("cache"),
	}
}

// Get returns the value for key, or ok=false on a miss. An expired or
// malformed entry is removed and counted as a miss. A hit updates the
// entry's access metadata in the backend (write-on-read).
func (m *Manager[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T

	raw, ok, err := m.backend.Get(ctx, key)
	if err != nil {
		m.backendError("get", key, err)
		m.recordMiss()
		return zero, false
	}
	if !ok {
		m.recordMiss()
		return zero, false
	}

	var entry Entry[T]
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		m.logger.Debug().Str("key", key).Err(err).Msg("Dropping malformed cache entry")
		m.remove(ctx, key)
		m.recordMiss()
		return zero, false
	}

	if entry.Expired() {
		m.remove(ctx, key)
		m.recordMiss()
		return zero, false
	}

	entry.AccessCount++
	entry.LastAccessed = time.Now()
	m.persist(ctx, key, &entry)

	m.recordHit()
	return entry.Data, true
}

// Set stores data under key with the given lifetime (zero means the
// manager's default). When the cache is at capacity the least recently
// accessed entries are evicted first.
func (m *Manager[T]) Set(ctx context.Context, key string, data T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}

	if m.Size(ctx) >= m.maxSize {
		m.evict(ctx)
	}

	now := time.Now()
	m.persist(ctx, key, &Entry[T]{
		Data:         data,
		Timestamp:    now,
		TTL:          ttl,
		AccessCount:  0,
		LastAccessed: now,
	})

	m.mu.Lock()
	m.sets++
	m.mu.Unlock()
}

// Delete removes key unconditionally and counts the deletion.
func (m *Manager[T]) Delete(ctx context.Context, key string) {
	if err := m.backend.Delete(ctx, key); err != nil {
		m.backendError("delete", key, err)
	}

	m.mu.Lock()
	m.deletes++
	m.mu.Unlock()
}

// Has reports whether key holds a live entry. It is a real Get under
// the hood: it counts a hit or miss and evicts on expiry, matching the
// statistics a subsequent Get would have produced.
func (m *Manager[T]) Has(ctx context.Context, key string) bool {
	_, ok := m.Get(ctx, key)
	return ok
}

// Clear empties the backend's partition and resets all statistics.
func (m *Manager[T]) Clear(ctx context.Context) {
	if err := m.backend.Clear(ctx); err != nil {
		m.backendError("clear", "", err)
	}

	m.mu.Lock()
	m.hits, m.misses, m.sets, m.deletes = 0, 0, 0, 0
	m.mu.Unlock()
}

// Prune removes every expired or malformed entry and returns the
// number removed. This is the only proactive reclamation path; Get
// reclaims lazily, one key at a time.
func (m *Manager[T]) Prune(ctx context.Context) int {
	keys, err := m.backend.Keys(ctx)
	if err != nil {
		m.backendError("keys", "", err)
		return 0
	}

	removed := 0
	for _, key := range keys {
		raw, ok, err := m.backend.Get(ctx, key)
		if err != nil {
			m.backendError("get", key, err)
			continue
		}
		if !ok {
			continue
		}

		var entry Entry[json.RawMessage]
		if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Expired() {
			m.remove(ctx, key)
			removed++
		}
	}

	if removed > 0 {
		CachePruned.Add(float64(removed))
		m.logger.Debug().Int("pruned", removed).Msg("Pruned expired cache entries")
	}
	return removed
}

// GetOrSet returns the cached value for key, or invokes factory,
// stores its result under ttl and returns it. With Coalesce enabled,
// concurrent callers for the same key await one shared invocation;
// otherwise each concurrent miss runs its own factory and the last
// write wins.
func (m *Manager[T]) GetOrSet(ctx context.Context, key string, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	if value, ok := m.Get(ctx, key); ok {
		return value, nil
	}

	if !m.coalesce {
		value, err := factory(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		m.Set(ctx, key, value, ttl)
		return value, nil
	}

	result, err, _ := m.group.Do(key, func() (any, error) {
		value, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		m.Set(ctx, key, value, ttl)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// Size returns the number of stored entries, including any that have
// expired but not yet been reclaimed.
func (m *Manager[T]) Size(ctx context.Context) int {
	keys, err := m.backend.Keys(ctx)
	if err != nil {
		m.backendError("keys", "", err)
		return 0
	}
	return len(keys)
}

// Stats returns a snapshot of the manager's counters. HitRate is
// hits/(hits+misses), or 0 before any read.
func (m *Manager[T]) Stats(ctx context.Context) Stats {
	m.mu.Lock()
	stats := Stats{
		Hits:    m.hits,
		Misses:  m.misses,
		Sets:    m.sets,
		Deletes: m.deletes,
	}
	m.mu.Unlock()

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	stats.Size = m.Size(ctx)
	return stats
}

// evict removes the least recently accessed tenth of the stored
// entries (at least one). It re-parses and re-sorts the full key set,
// an accepted cost since eviction only fires on writes at the cap.
func (m *Manager[T]) evict(ctx context.Context) {
	keys, err := m.backend.Keys(ctx)
	if err != nil {
		m.backendError("keys", "", err)
		return
	}

	type candidate struct {
		key          string
		lastAccessed time.Time
	}

	var candidates []candidate
	removed := 0

	for _, key := range keys {
		raw, ok, err := m.backend.Get(ctx, key)
		if err != nil {
			m.backendError("get", key, err)
			continue
		}
		if !ok {
			continue
		}

		var entry Entry[json.RawMessage]
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			// Junk entries free a slot just as well.
			m.remove(ctx, key)
			removed++
			continue
		}
		candidates = append(candidates, candidate{key: key, lastAccessed: entry.LastAccessed})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
	})

	count := len(candidates) / evictionDivisor
	if count == 0 && len(candidates) > 0 {
		count = 1
	}
	for _, c := range candidates[:count] {
		m.remove(ctx, c.key)
		removed++
	}

	if removed > 0 {
		CacheEvictions.Add(float64(removed))
		m.logger.Debug().Int("evicted", removed).Msg("Evicted least recently used entries")
	}
}

// persist serializes an entry into the backend. Failures are counted
// and logged but never surfaced; callers observe a miss later instead.
func (m *Manager[T]) persist(ctx context.Context, key string, entry *Entry[T]) {
	data, err := json.Marshal(entry)
	if err != nil {
		m.logger.Warn().Str("key", key).Err(err).Msg("Failed to serialize cache entry")
		return
	}
	if err := m.backend.Set(ctx, key, string(data)); err != nil {
		m.backendError("set", key, err)
	}
}

// remove deletes a key on an internal reclamation path (expiry,
// malformed entry, eviction). Unlike Delete it does not count toward
// the deletes statistic.
func (m *Manager[T]) remove(ctx context.Context, key string) {
	if err := m.backend.Delete(ctx, key); err != nil {
		m.backendError("delete", key, err)
	}
}

func (m *Manager[T]) recordHit() {
	CacheHits.Inc()
	m.mu.Lock()
	m.hits++
	m.mu.Unlock()
}

func (m *Manager[T]) recordMiss() {
	CacheMisses.Inc()
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

func (m *Manager[T]) backendError(operation, key string, err error) {
	CacheBackendErrors.WithLabelValues(operation).Inc()
	m.logger.Warn().
		Str("operation", operation).
		Str("key", key).
		Err(err).
		Msg("Cache backend unavailable")
}
