package game

import (
	mathrand "math/rand"
	"sync"
)

// Sampler draws production values for firm cycles.
type Sampler interface {
	Normal(mean, stdDev float64) float64
}

type randSampler struct {
	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewRandSampler(seed int64) Sampler {
	return &randSampler{rand: mathrand.New(mathrand.NewSource(seed))}
}

func (s *randSampler) Normal(mean, stdDev float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mean + stdDev*s.rand.NormFloat64()
}
