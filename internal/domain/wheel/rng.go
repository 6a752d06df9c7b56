package wheel

import (
	"math/rand/v2"
	"sync"
)

// RandomSource supplies the randomness used for shuffling, selection and jitter.
type RandomSource interface {
	// IntN returns a uniform integer in [0, n). n must be > 0.
	IntN(n int) int
	// Float64 returns a uniform float in [0, 1).
	Float64() float64
}

// systemRNG draws from the runtime-seeded generator in math/rand/v2, which
// is safe for concurrent use.
type systemRNG struct{}

func (systemRNG) IntN(n int) int   { return rand.IntN(n) }
func (systemRNG) Float64() float64 { return rand.Float64() }

// DefaultRNG returns the process-wide random source.
func DefaultRNG() RandomSource { return systemRNG{} }

// seededRNG is reproducible, for tests and replays.
type seededRNG struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeededRNG returns a deterministic source seeded with seed.
func NewSeededRNG(seed uint64) RandomSource {
	return &seededRNG{r: rand.New(rand.NewPCG(seed, 0))}
}

func (s *seededRNG) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

func (s *seededRNG) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}
