package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/blockwatch/internal/dns/repos/allowlist"
)

type factory struct{}

// NewFactory returns the BloomFactory the allowlist repository uses to
// rebuild its prefilter on every rule snapshot.
func NewFactory() allowlist.BloomFactory { return factory{} }

// New returns an empty prefilter for capacity allowlist keys (exact names
// plus reversed suffix anchors) at the target false-positive rate. A false
// positive only costs one bolt lookup; a negative skips the store entirely.
func (factory) New(capacity uint64, fpRate float64) allowlist.BloomFilter {
	bits, hashes := size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(bits), uint(hashes))}
}
