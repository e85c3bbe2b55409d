package charts

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// ChartCache is an in-memory TTL cache for rendered chart snippets.
type ChartCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]cachedChart
	now     func() time.Time
}

type cachedChart struct {
	snippet Snippet
	expires time.Time
}

// NewChartCache builds a cache with the provided TTL. A non-positive TTL
// disables caching.
func NewChartCache(ttl time.Duration) *ChartCache {
	return &ChartCache{
		ttl:     ttl,
		entries: make(map[string]cachedChart),
		now:     time.Now,
	}
}

// GetOrRender returns a cached entry or renders and stores a new one.
func (c *ChartCache) GetOrRender(key string, render func() (Snippet, error)) (Snippet, error) {
	if snippet, ok := c.get(key); ok {
		return snippet, nil
	}
	snippet, err := render()
	if err != nil {
		return Snippet{}, err
	}
	c.set(key, snippet)
	return snippet, nil
}

// Len reports the number of stored entries, expired ones included.
func (c *ChartCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops expired entries.
func (c *ChartCache) Purge() int {
	if c == nil {
		return 0
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *ChartCache) get(key string) (Snippet, bool) {
	if c == nil || c.ttl <= 0 {
		return Snippet{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expires) {
		if ok {
			c.mu.Lock()
			delete(c.entries, key)
			c.mu.Unlock()
		}
		return Snippet{}, false
	}
	return entry.snippet, true
}

func (c *ChartCache) set(key string, snippet Snippet) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cachedChart{
		snippet: snippet,
		expires: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// inputHash returns a deterministic hash of the chart inputs.
func inputHash(parts ...any) string {
	b, err := json.Marshal(parts)
	if err != nil {
		return "invalid"
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}
