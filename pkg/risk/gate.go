// Package risk classifies a call leg as suspicious (synthetic or replayed
// voice) or not.
package risk

import (
	"context"
	"math/rand/v2"
)

// DefaultThreshold is the score at or above which a call is flagged.
const DefaultThreshold = 0.78

// Gate is the pluggable risk check consumed by the verification flow. Only the
// boolean outcome drives behavior; the score is informational.
type Gate interface {
	Assess(ctx context.Context) (suspicious bool, score float64)
}

// RandomGate is a placeholder scorer: a low baseline with a small chance of an
// elevated spike.
type RandomGate struct {
	Threshold float64
	// SpikeProbability is the chance of adding an elevated component.
	SpikeProbability float64

	float func() float64
}

var _ Gate = &RandomGate{}

func NewRandomGate(threshold float64) *RandomGate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &RandomGate{
		Threshold:        threshold,
		SpikeProbability: 0.07,
		float:            rand.Float64,
	}
}

// NewSeededRandomGate is deterministic; used by tests.
func NewSeededRandomGate(threshold float64, seed uint64) *RandomGate {
	g := NewRandomGate(threshold)
	g.float = rand.New(rand.NewPCG(seed, seed+1)).Float64
	return g
}

func (g *RandomGate) Score() float64 {
	f := g.float
	if f == nil {
		f = rand.Float64
	}
	score := uniform(f, 0.05, 0.25)
	if f() < g.SpikeProbability {
		score += uniform(f, 0.5, 0.9)
	}
	return min(score, 1.0)
}

func (g *RandomGate) Assess(_ context.Context) (bool, float64) {
	score := g.Score()
	return score >= g.Threshold, score
}

func uniform(f func() float64, lo, hi float64) float64 {
	return lo + (hi-lo)*f()
}

// StaticGate always returns the same outcome.
type StaticGate struct {
	Suspicious bool
	Value      float64
}

var _ Gate = StaticGate{}

func (g StaticGate) Assess(_ context.Context) (bool, float64) {
	return g.Suspicious, g.Value
}
