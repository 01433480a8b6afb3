package fault

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Sampler draws the random values used by the interceptors. A nil source
// uses the runtime's shared generator.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler returns a Sampler over src. Pass nil in production; tests pass
// a seeded source for reproducible draws.
func NewSampler(src rand.Source) *Sampler {
	if src == nil {
		return &Sampler{}
	}
	return &Sampler{rng: rand.New(src)}
}

// Delay samples an injected delay in two stages:
//
//  1. ceiling is drawn uniformly from [0, jitterMS)
//  2. the delay is drawn uniformly from [latencyMS, latencyMS+ceiling)
//
// so every result lies in [latencyMS, latencyMS+jitterMS] and short delays
// near latencyMS are more likely than long ones.
func (s *Sampler) Delay(latencyMS, jitterMS float64) time.Duration {
	ceiling := s.float64() * jitterMS
	ms := latencyMS + s.float64()*ceiling
	return millisToDuration(ms)
}

// maxMillis is the largest millisecond count a Duration can hold.
const maxMillis = float64(math.MaxInt64) / float64(time.Millisecond)

// millisToDuration saturates at the largest Duration instead of wrapping
// negative.
func millisToDuration(ms float64) time.Duration {
	if ms >= maxMillis {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// Pick returns one element of codes chosen uniformly. codes must be non-empty.
func (s *Sampler) Pick(codes []int) int {
	return codes[s.intN(len(codes))]
}

func (s *Sampler) float64() float64 {
	if s.rng == nil {
		return rand.Float64()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Sampler) intN(n int) int {
	if s.rng == nil {
		return rand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
