package sim

// === Seeded PRNG ===

// RNG is a fast deterministic generator with 32 bits of state
// (mulberry32: one additive constant plus multiply-xor-shift mixing).
// Two RNGs created from the same seed MUST produce identical sequences
// regardless of where they run, which is what makes in-process and
// worker-hosted scenario setups directly comparable.
//
// Thread-safety: NOT thread-safe. Must be called from a single
// goroutine.
type RNG struct {
	state uint32
}

// NewRNG creates a generator from a 32-bit seed.
func NewRNG(seed uint32) *RNG {
	return &RNG{state: seed}
}

// Uint32 advances the state and returns the next 32 raw bits.
func (r *RNG) Uint32() uint32 {
	r.state += 0x6D2B79F5
	z := r.state
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	return z ^ (z >> 14)
}

// Float64 returns the next value in [0, 1).
func (r *RNG) Float64() float64 {
	return float64(r.Uint32()) / 4294967296.0
}

// FloatRange returns the next value in [min, max). The draw consumes
// exactly one state advance, so callers can rely on a fixed draw order
// for reproducibility.
func (r *RNG) FloatRange(min, max float64) float64 {
	return min + r.Float64()*(max-min)
}

// IntRange returns the next integer in [min, max].
func (r *RNG) IntRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + int(r.Float64()*float64(max-min+1))
}
