package allowlist

import (
	"strings"
	"sync"

	"github.com/haukened/blockwatch/internal/dns/common/utils"
	"github.com/haukened/blockwatch/internal/dns/domain"
)

// repository implements the Repository interface by composing a Store,
// a Bloom filter (via factory), and a DecisionCache. It applies a
// cache -> bloom -> store pipeline on reads and swaps snapshots on writes.
type repository struct {
	mu      sync.RWMutex
	store   Store
	cache   DecisionCache
	bloom   BloomFilter
	factory BloomFactory
	fpRate  float64
}

// NewRepository constructs a Repository.
// fpRate is the target false-positive rate for the Bloom filter when rebuilding.
func NewRepository(store Store, cache DecisionCache, factory BloomFactory, fpRate float64) Repository {
	return &repository{store: store, cache: cache, factory: factory, fpRate: fpRate}
}

// Decide returns an AllowDecision for the provided domain name.
func (r *repository) Decide(name string) domain.AllowDecision {
	cn := utils.CanonicalDNSName(name)
	if d, ok := r.checkCache(cn); ok {
		return d
	}
	// definitely not on the list
	if !r.checkBloom(cn) {
		return domain.EmptyDecision()
	}
	dec := r.checkStore(cn)
	r.updateCache(cn, dec)
	return dec
}

// UpdateAll performs a snapshot update across store, bloom, and cache.
func (r *repository) UpdateAll(rules []domain.AllowRule, version uint64, updatedUnix int64) error {
	if err := r.store.RebuildAll(rules, version, updatedUnix); err != nil {
		return err
	}

	var n uint64
	for _, ru := range rules {
		if ru.Kind == domain.AllowRuleExact || ru.Kind == domain.AllowRuleSuffix {
			n++
		}
	}
	bf := r.factory.New(n, r.fpRate)
	for _, ru := range rules {
		switch ru.Kind {
		case domain.AllowRuleExact:
			bf.Add([]byte(ru.Name))
		case domain.AllowRuleSuffix:
			bf.Add([]byte(reverseString(ru.Name)))
		}
	}

	r.mu.Lock()
	r.bloom = bf
	r.cache.Purge()
	r.mu.Unlock()
	return nil
}

// Stats returns cache and store stats.
func (r *repository) Stats() RepoStats {
	return RepoStats{Cache: r.cache.Stats(), Store: r.store.Stats()}
}

// Close releases the underlying store.
func (r *repository) Close() error { return r.store.Close() }

// reverseString reverses the string runes. Must match the store's reversal
// logic so Bloom keys stay aligned with Bolt suffix keys.
func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// checkBloom returns true if the store should be consulted (maybe-positive),
// false if the name is definitely not on the list. With no bloom loaded it
// returns true.
func (r *repository) checkBloom(cn string) bool {
	r.mu.RLock()
	bf := r.bloom
	r.mu.RUnlock()
	if bf == nil {
		return true
	}
	if bf.MightContain([]byte(cn)) {
		return true
	}
	// suffix anchors, most-specific -> apex
	a := cn
	for {
		if bf.MightContain([]byte(reverseString(a))) {
			return true
		}
		i := strings.IndexByte(a, '.')
		if i < 0 {
			break
		}
		a = a[i+1:]
		if a == "" {
			break
		}
	}
	return false
}

func (r *repository) checkCache(cn string) (domain.AllowDecision, bool) {
	r.mu.RLock()
	d, ok := r.cache.Get(cn)
	r.mu.RUnlock()
	return d, ok
}

// checkStore consults the authoritative store. Errors and misses yield
// EmptyDecision.
func (r *repository) checkStore(cn string) domain.AllowDecision {
	rule, ok, err := r.store.GetFirstMatch(cn)
	if err == nil && ok {
		return domain.AllowDecision{Allowed: true, MatchedRule: rule.Name, Source: rule.Source, Kind: rule.Kind}
	}
	return domain.EmptyDecision()
}

func (r *repository) updateCache(cn string, dec domain.AllowDecision) {
	r.mu.Lock()
	r.cache.Put(cn, dec)
	r.mu.Unlock()
}
