// Package cache memoises item reads between writes.
package cache

import (
	"strings"
	"time"

	"clinical-mdr-api/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const keySeparator = "|"

// ItemCache is a bounded, expiring cache of loaded items keyed by uid and a
// read variant (version, status, date). A nil cache stores nothing.
type ItemCache struct {
	lru     *expirable.LRU[string, any]
	metrics *metrics.Metrics
}

func New(size int, ttl time.Duration, m *metrics.Metrics) *ItemCache {
	return &ItemCache{
		lru:     expirable.NewLRU[string, any](size, nil, ttl),
		metrics: m,
	}
}

func key(uid, variant string) string {
	return uid + keySeparator + variant
}

func (c *ItemCache) Get(uid, variant string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.lru.Get(key(uid, variant))
	if c.metrics != nil {
		if ok {
			c.metrics.CacheHits.Inc()
		} else {
			c.metrics.CacheMisses.Inc()
		}
	}
	return v, ok
}

func (c *ItemCache) Put(uid, variant string, value any) {
	if c == nil {
		return
	}
	c.lru.Add(key(uid, variant), value)
}

// Invalidate drops every variant cached for uid. Called by the write path
// after a successful commit.
func (c *ItemCache) Invalidate(uid string) {
	if c == nil {
		return
	}
	prefix := uid + keySeparator
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

func (c *ItemCache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *ItemCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
