package ai

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"mcpd/internal/clock"
)

// DefaultCacheEntries bounds the cache when no size is configured.
const DefaultCacheEntries = 500

type cacheEntry struct {
	data any
	at   time.Time
}

// Cache holds upstream results keyed by endpoint and arguments. Entries
// expire lazily: an entry older than the caller's TTL is dropped on the
// lookup that finds it. The least recently used entry is evicted once the
// cache is full.
type Cache struct {
	clock   clock.Clock
	entries *lru.Cache[string, cacheEntry]

	mu     sync.Mutex
	hits   int
	misses int
}

func NewCache(maxEntries int, c clock.Clock) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if c == nil {
		c = clock.NewReal()
	}
	entries, _ := lru.New[string, cacheEntry](maxEntries)
	return &Cache{clock: c, entries: entries}
}

// Get returns the value under key if it is at most ttl old.
func (c *Cache) Get(key string, ttl time.Duration) (any, bool) {
	e, ok := c.entries.Get(key)
	if ok && c.clock.Since(e.at) > ttl {
		c.entries.Remove(key)
		ok = false
	}
	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e.data, true
}

func (c *Cache) Put(key string, v any) {
	c.entries.Add(key, cacheEntry{data: v, at: c.clock.Now()})
}

func (c *Cache) Len() int { return c.entries.Len() }

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{Hits: c.hits, Misses: c.misses, Entries: c.Len()}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// CacheKey is the endpoint name followed by the JSON form of args.
func CacheKey(endpoint string, args any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return endpoint + string(b), nil
}

// CallWithCache returns the cached result of fn(args) when one younger than
// ttl exists, otherwise it calls fn and stores the result. A ttl <= 0 skips
// the cache entirely. Concurrent misses on the same key each call fn.
func CallWithCache[A, V any](ctx context.Context, c *Cache, endpoint string, fn func(context.Context, A) (V, error), args A, ttl time.Duration) (v V, cached bool, err error) {
	if c == nil || ttl <= 0 {
		v, err = fn(ctx, args)
		return v, false, err
	}
	key, kerr := CacheKey(endpoint, args)
	if kerr != nil {
		v, err = fn(ctx, args)
		return v, false, err
	}
	if hit, ok := c.Get(key, ttl); ok {
		if typed, ok := hit.(V); ok {
			return typed, true, nil
		}
	}
	v, err = fn(ctx, args)
	if err != nil {
		return v, false, err
	}
	c.Put(key, v)
	return v, false, nil
}
