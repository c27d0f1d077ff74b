// Package random provides the explicit randomness sources used by the simulation.
// Every draw in the engine goes through a Source so runs can be seeded or scripted.
package random

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// Source yields uniform draws in [0, 1).
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
}

// NewSeeded returns a deterministic PCG generator for the given seed.
func NewSeeded(seed int64) *rand.Rand {
	// Non-cryptographic PRNG is intentional for reproducible simulation runs.
	// #nosec G404
	return rand.New(rand.NewPCG(seedWord(seed, "a"), seedWord(seed, "b")))
}

func seedWord(seed int64, salt string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("%d:%s", seed, salt)))
	return h.Sum64()
}

// Bernoulli reports success with probability p.
// p <= 0 never succeeds; p >= 1 always does.
func Bernoulli(src Source, p float64) bool {
	return src.Float64() < p
}

// Fixed always returns the same draw. Useful for forcing outcomes in tests.
type Fixed float64

func (f Fixed) Float64() float64 { return float64(f) }

// Sequence replays scripted draws in order and panics once exhausted,
// which surfaces an unexpected extra draw in a test immediately.
type Sequence struct {
	draws []float64
	next  int
}

// NewSequence creates a scripted source.
func NewSequence(draws ...float64) *Sequence {
	return &Sequence{draws: draws}
}

func (s *Sequence) Float64() float64 {
	if s.next >= len(s.draws) {
		panic(fmt.Sprintf("random: sequence exhausted after %d draws", len(s.draws)))
	}
	v := s.draws[s.next]
	s.next++
	return v
}

// Remaining reports how many scripted draws have not been consumed.
func (s *Sequence) Remaining() int {
	return len(s.draws) - s.next
}
