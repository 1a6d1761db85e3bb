package charging

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultFailureRate is the probability of a simulated station malfunction.
const DefaultFailureRate = 0.02

// FailurePolicy decides whether a station malfunctions for one assignment.
type FailurePolicy interface {
	Malfunction(stationID string) bool
}

// FailureFunc adapts a function to FailurePolicy.
type FailureFunc func(stationID string) bool

// Malfunction implements FailurePolicy.
func (f FailureFunc) Malfunction(stationID string) bool { return f(stationID) }

// NeverFail never injects a malfunction.
type NeverFail struct{}

// Malfunction implements FailurePolicy.
func (NeverFail) Malfunction(string) bool { return false }

// RandomFailure injects malfunctions with a fixed independent probability.
type RandomFailure struct {
	rate float64
	mu   sync.Mutex
	rng  *rand.Rand
}

// NewRandomFailure returns a policy failing with probability rate. A zero
// seed uses the current time.
func NewRandomFailure(rate float64, seed int64) *RandomFailure {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomFailure{rate: rate, rng: rand.New(rand.NewSource(seed))}
}

// Rate returns the configured probability.
func (r *RandomFailure) Rate() float64 { return r.rate }

// Malfunction implements FailurePolicy.
func (r *RandomFailure) Malfunction(string) bool {
	if r.rate <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < r.rate
}
