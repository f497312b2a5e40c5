package allowlist

import "github.com/haukened/blockwatch/internal/dns/domain"

// BloomFactory constructs Bloom filters sized for a capacity and target FP rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// BloomFilter is the minimal interface the repository needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// DecisionCache caches allow decisions by canonical name with basic metrics.
type DecisionCache interface {
	Get(name string) (domain.AllowDecision, bool)
	Put(name string, d domain.AllowDecision)
	Len() int
	Purge()
	Stats() CacheStats
}

// Store is the persistent rule index.
// - GetFirstMatch: exact rule first, then the most specific suffix anchor
// - RebuildAll: atomically replace every rule and the snapshot metadata
type Store interface {
	GetFirstMatch(name string) (domain.AllowRule, bool, error)
	RebuildAll(rules []domain.AllowRule, version uint64, updatedUnix int64) error
	Purge() error
	Stats() StoreStats
	Close() error
}

// Repository is the composition layer that wires cache -> bloom -> store.
// Decide returns a value-type AllowDecision for the name; on internal errors
// it reports not-allowed so that notifications are never silently lost.
type Repository interface {
	Decide(name string) domain.AllowDecision
	UpdateAll(rules []domain.AllowRule, version uint64, updatedUnix int64) error
	Stats() RepoStats
	Close() error
}
