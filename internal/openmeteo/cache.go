package openmeteo

import (
	"sync"
	"time"

	"github.com/tigerroll/weatherdw/internal/domain/entity"
)

type cacheEntry struct {
	payload *entity.Payload
	expires time.Time
}

// responseCache keeps decoded payloads per request URL for a fixed TTL.
type responseCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newResponseCache(ttl time.Duration, now func() time.Time) *responseCache {
	return &responseCache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

func (c *responseCache) get(key string) (*entity.Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.payload, true
}

func (c *responseCache) put(key string, p *entity.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{payload: p, expires: now.Add(c.ttl)}
}
