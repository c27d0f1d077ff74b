package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeededDeterministic(t *testing.T) {
	a := NewSeeded(12345)
	b := NewSeeded(12345)

	for i := 0; i < 20; i++ {
		require.Equal(t, a.Float64(), b.Float64(), "mismatch at draw %d", i)
	}
}

func TestSeedWordChangesWithSalt(t *testing.T) {
	assert.NotEqual(t, seedWord(99, "a"), seedWord(99, "b"))
}

func TestBernoulliBounds(t *testing.T) {
	assert.True(t, Bernoulli(Fixed(0.999), 1.0))
	assert.False(t, Bernoulli(Fixed(0), 0))
	assert.True(t, Bernoulli(Fixed(0.3), 0.5))
	assert.False(t, Bernoulli(Fixed(0.5), 0.5))
}

func TestSequenceReplaysAndPanicsWhenExhausted(t *testing.T) {
	s := NewSequence(0.1, 0.9)
	assert.Equal(t, 0.1, s.Float64())
	assert.Equal(t, 1, s.Remaining())
	assert.Equal(t, 0.9, s.Float64())
	assert.Panics(t, func() { s.Float64() })
}
