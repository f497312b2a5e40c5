package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/blockwatch/internal/dns/domain"
	"github.com/haukened/blockwatch/internal/dns/repos/allowlist"
)

// decisionCache is an LRU-backed implementation of allowlist.DecisionCache.
// It tracks basic metrics: hits, misses, and evictions.
type decisionCache struct {
	lru       *lru.Cache[string, domain.AllowDecision]
	capacity  int
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// newLRU is a seam for tests.
var newLRU = func(size int, onEvict func(string, domain.AllowDecision)) (*lru.Cache[string, domain.AllowDecision], error) {
	return lru.NewWithEvict(size, onEvict)
}

// New creates a new DecisionCache with the given capacity. If size <= 0, a
// disabled no-op cache is returned that always misses and tracks no metrics.
func New(size int) (allowlist.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	dc := &decisionCache{capacity: size}
	// evictions include Purge-induced ones
	cache, err := newLRU(size, func(_ string, _ domain.AllowDecision) {
		dc.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

// Get looks up a decision by name. When found, increments hits; otherwise increments misses.
func (c *decisionCache) Get(name string) (domain.AllowDecision, bool) {
	if val, ok := c.lru.Get(name); ok {
		c.hits.Add(1)
		return val, true
	}
	c.misses.Add(1)
	return domain.AllowDecision{}, false
}

// Put stores a decision by name.
func (c *decisionCache) Put(name string, d domain.AllowDecision) {
	c.lru.Add(name, d)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

func (c *decisionCache) Purge() { c.lru.Purge() }

// Stats returns capacity, size and cumulative counters.
func (c *decisionCache) Stats() allowlist.CacheStats {
	return allowlist.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// disabledCache implementation

func (d *disabledCache) Get(string) (domain.AllowDecision, bool) {
	return domain.AllowDecision{}, false
}

func (d *disabledCache) Put(string, domain.AllowDecision) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() allowlist.CacheStats { return allowlist.CacheStats{} }

var _ allowlist.DecisionCache = (*decisionCache)(nil)
var _ allowlist.DecisionCache = (*disabledCache)(nil)
