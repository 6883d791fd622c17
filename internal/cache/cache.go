// Package cache provides the process-local result cache fronting the
// register and stats read paths. Entries expire after a fixed TTL and are
// evicted lazily on lookup. Writes invalidate coarsely by stream prefix.
//
// The cache is single-process: a multi-instance deployment observes staleness
// up to the TTL after a write on another instance. That is an accepted
// limitation, not something this package tries to solve.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Logical key prefixes. Every cached computation files under one of these so
// a stream-level write can invalidate all of them at once.
const (
	PrefixRegister   = "register"
	PrefixStats      = "stats"
	PrefixAttendance = "attendance"
)

var logicalPrefixes = []string{PrefixRegister, PrefixStats, PrefixAttendance}

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "result_cache_hits_total",
		Help: "Result cache lookups served from memory.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "result_cache_misses_total",
		Help: "Result cache lookups that fell through to the store.",
	})
	cacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "result_cache_invalidations_total",
		Help: "Entries removed by prefix invalidation.",
	})
)

type entry struct {
	value      any
	insertedAt time.Time
}

// Cache is a mutex-guarded key -> (value, insertedAt) map with a fixed TTL.
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New creates a cache with the given TTL (5 minutes when non-positive).
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for key. Expired entries are evicted here
// rather than by a background sweep.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		cacheMisses.Inc()
		return nil, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, key)
		cacheMisses.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return e.value, true
}

// Set stores value under key, stamping the insertion time.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, insertedAt: c.now()}
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	cacheInvalidations.Add(float64(removed))
	return removed
}

// InvalidateStream removes every cached result for the stream across all
// logical prefixes.
func (c *Cache) InvalidateStream(stream string) int {
	removed := 0
	for _, p := range logicalPrefixes {
		removed += c.InvalidatePrefix(p + ":" + strings.ToLower(stream) + ":")
	}
	return removed
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key builds a deterministic cache key: prefix, lowercased stream, then the
// remaining parameters as sorted k=v pairs so semantically identical queries
// always map to the same key regardless of caller argument order.
func Key(prefix, stream string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(strings.ToLower(stream))
	b.WriteByte(':')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.ToLower(params[k]))
	}
	return b.String()
}
