package apiclient

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sync"
	"time"
)

// Cache is a process-wide TTL response cache. It is an explicitly
// initialized dependency: construct it at startup, share it across
// clients, and Flush it on shutdown. Only successful GET responses are
// stored; there is no negative caching.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithDefaultTTL sets the TTL used when a request enables caching
// without specifying one.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithMaxEntries bounds the cache size; the oldest-expiring entries are
// evicted when it is exceeded.
func WithMaxEntries(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// withClock overrides time for expiry tests.
func withClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a Cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:    make(map[string]cacheEntry),
		defaultTTL: 5 * time.Minute,
		maxEntries: 1024,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached result for key, when present and
// unexpired.
func (c *Cache) Get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	result := entry.result
	return &result, true
}

// Put stores result under key with the given TTL (zero means the cache
// default).
func (c *Cache) Put(key string, result *Result, ttl time.Duration) {
	if result == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = cacheEntry{
		result:    *result,
		expiresAt: c.now().Add(ttl),
	}
}

// Flush drops every entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the entry closest to expiry. Caller holds the lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.expiresAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.expiresAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// buildCacheKey canonicalizes (method, url + sorted query, body hash,
// auth principal hash) into one key. The principal hash keeps responses
// from leaking across credentials.
func buildCacheKey(method, baseURL string, query url.Values, body any, auth AuthConfig) string {
	bodyJSON, _ := json.Marshal(body)
	bodyHash := sha256.Sum256(bodyJSON)
	principalHash := sha256.Sum256([]byte(authPrincipal(auth)))

	return method + "|" + baseURL + "?" + sortedQueryString(query) +
		"|" + hex.EncodeToString(bodyHash[:]) +
		"|" + hex.EncodeToString(principalHash[:])
}
