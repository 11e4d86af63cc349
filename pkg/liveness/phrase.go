// Package liveness generates short phrases a caller is asked to repeat to prove
// they are a live human rather than a recording.
package liveness

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

var (
	colors = []string{"blue", "silver", "green", "orange", "violet"}
	nouns  = []string{"cedar", "harbor", "atlas", "falcon", "delta"}
)

// Generator draws phrases of the form "<color> <noun> <10..99>".
type Generator struct {
	intN func(n int) int
}

// NewGenerator returns a Generator backed by the global math/rand/v2 source.
func NewGenerator() *Generator {
	return &Generator{intN: rand.IntN}
}

// NewSeededGenerator is deterministic; used by tests.
func NewSeededGenerator(seed uint64) *Generator {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &Generator{intN: r.IntN}
}

// Phrase returns a fresh phrase. Each call draws all three parts independently.
func (g *Generator) Phrase() string {
	intN := rand.IntN
	if g != nil && g.intN != nil {
		intN = g.intN
	}
	return fmt.Sprintf("%s %s %d", colors[intN(len(colors))], nouns[intN(len(nouns))], 10+intN(90))
}

// Phrase is a convenience wrapper around a default Generator.
func Phrase() string {
	return NewGenerator().Phrase()
}

// Matches reports whether every token of phrase occurs in the lowercased
// utterance. Order and surrounding words do not matter.
func Matches(phrase, utterance string) bool {
	tokens := strings.Fields(strings.ToLower(phrase))
	if len(tokens) == 0 {
		return false
	}
	u := strings.ToLower(utterance)
	for _, tok := range tokens {
		if !strings.Contains(u, tok) {
			return false
		}
	}
	return true
}
