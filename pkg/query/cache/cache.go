// Package cache provides an optional query result cache. It is a pure
// performance layer: a miss always falls through to a live query, so a
// disabled or flushed cache never changes a result, only its latency.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one cached query result.
type Entry struct {
	Result    []map[string]interface{}
	CreatedAt time.Time
	ExpiresAt time.Time
	Hits      int64
}

// Cache holds query results in process memory, optionally mirrored to
// a Redis instance so a cold restart can still serve warm results.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	maxSize int
	maxAge  time.Duration
	hits    int64
	misses  int64

	redis *redis.Client
}

// New creates an in-process cache. If redisAddr is non-empty, gets and
// puts also mirror to the named Redis instance.
func New(maxSize int, maxAge time.Duration, redisAddr string) *Cache {
	c := &Cache{
		entries: make(map[string]*Entry),
		maxSize: maxSize,
		maxAge:  maxAge,
	}
	if redisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	return c
}

// Key derives the cache key for a query: the SHA-256 digest of the
// query's JSON bytes combined with the dataset id and row count, so a
// re-added dataset with a different row count never hits an old entry.
// A re-add with the same row count produces the same key; the facade
// clears the cache with InvalidateAll on every remove to cover that.
func Key(queryJSON []byte, datasetID string, numRows int) string {
	h := sha256.New()
	h.Write(queryJSON)
	h.Write([]byte(datasetID))
	h.Write([]byte{byte(numRows), byte(numRows >> 8), byte(numRows >> 16), byte(numRows >> 24)})
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached result by key.
func (c *Cache) Get(ctx context.Context, key string) ([]map[string]interface{}, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		if time.Now().After(entry.ExpiresAt) {
			c.mu.Lock()
			delete(c.entries, key)
			c.mu.Unlock()
			ok = false
		}
	}

	if !ok && c.redis != nil {
		if result, found := c.getFromRedis(ctx, key); found {
			c.putLocal(key, result)
			c.recordHit()
			return result, true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok {
		c.misses++
		return nil, false
	}
	entry.Hits++
	c.hits++
	return entry.Result, true
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache) getFromRedis(ctx context.Context, key string) ([]map[string]interface{}, bool) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var result []map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}
	return result, true
}

// Put stores a result under key, evicting the oldest entry if the
// cache is at capacity.
func (c *Cache) Put(ctx context.Context, key string, result []map[string]interface{}) {
	c.putLocal(key, result)
	if c.redis != nil {
		if data, err := json.Marshal(result); err == nil {
			c.redis.Set(ctx, key, data, c.maxAge)
		}
	}
}

func (c *Cache) putLocal(key string, result []map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &Entry{
		Result:    result,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(c.maxAge),
	}
}

func (c *Cache) evictOldest() {
	var oldestKey string
	var oldest *Entry
	for key, entry := range c.entries {
		if oldest == nil || entry.CreatedAt.Before(oldest.CreatedAt) {
			oldest = entry
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// InvalidateAll clears every cached entry, local and (best-effort) remote.
func (c *Cache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
	if c.redis != nil {
		c.redis.FlushDB(ctx)
	}
}

// Stats reports cache hit/miss counters.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
	HitRate float64
}

// Stats returns the current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses, HitRate: rate}
}
