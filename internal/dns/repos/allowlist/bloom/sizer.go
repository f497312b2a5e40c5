package bloom

import "math"

// defaultFPRate is used when the repository passes a rate outside (0, 1).
const defaultFPRate = 0.01

// size returns the bit count and hash count for a prefilter holding n
// allowlist keys at false-positive rate p:
//
//	bits   = -(n * ln p) / (ln 2)^2
//	hashes = (bits / n) * ln 2
//
// An empty allowlist is sized as one key. Both results are at least 1.
func size(n uint64, p float64) (uint64, uint8) {
	n = max(n, 1)
	if !(p > 0 && p < 1) {
		p = defaultFPRate
	}
	bits := max(uint64(math.Ceil(-float64(n)*math.Log(p)/(math.Ln2*math.Ln2))), 1)
	hashes := uint8(math.Max(1, math.Round(float64(bits)/float64(n)*math.Ln2)))
	return bits, hashes
}
