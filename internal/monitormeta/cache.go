package monitormeta

import (
	"sync"
	"time"

	"pulsewatch/pkg/monitor"
)

type cacheEntry struct {
	meta      monitor.TargetMetadata
	expiresAt time.Time
}

// ttlCache is a bounded-lifetime cache of resolved TargetMetadata keyed by
// hostname, so a burst of due targets sharing a hostname does not each
// pay for a fresh DNS/GeoIP round trip within the TTL window.
type ttlCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{entries: make(map[string]cacheEntry), ttl: ttl}
}

func (c *ttlCache) Get(hostname string, now time.Time) (monitor.TargetMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[hostname]
	if !ok || now.After(e.expiresAt) {
		return monitor.TargetMetadata{}, false
	}
	return e.meta, true
}

func (c *ttlCache) Set(hostname string, meta monitor.TargetMetadata, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hostname] = cacheEntry{meta: meta, expiresAt: now.Add(c.ttl)}
}
