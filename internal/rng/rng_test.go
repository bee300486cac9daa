package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_SameSeedProducesIdenticalSequence(t *testing.T) {
	a := New(1234)
	b := New(1234)

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestNew_RemapsZeroSeed(t *testing.T) {
	s := New(0)
	assert.NotEqual(t, uint32(0), s.Seed())
}

func TestIntn_StaysInRange(t *testing.T) {
	s := New(42)
	for i := 0; i < 1000; i++ {
		v := s.Intn(7)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 7)
	}
}

func TestIntn_PanicsOnNonPositiveN(t *testing.T) {
	s := New(1)
	assert.Panics(t, func() { s.Intn(0) })
}

func TestPerturb_IsDeterministicPerSalt(t *testing.T) {
	a := New(99)
	b := New(99)

	childA := a.Perturb(5)
	childB := b.Perturb(5)
	assert.Equal(t, childA.Next(), childB.Next())

	c := New(99)
	childC := c.Perturb(6)
	assert.NotEqual(t, childA.Seed(), childC.Seed())
}

func TestShuffle_IsDeterministicForSameSeed(t *testing.T) {
	run := func(seed uint32) []int {
		ids := []int{0, 1, 2, 3, 4, 5, 6, 7}
		New(seed).Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		return ids
	}

	first := run(123)
	second := run(123)
	assert.Equal(t, first, second)

	// sanity: shuffle actually permutes the full set, not a subset
	seen := make(map[int]bool)
	for _, v := range first {
		seen[v] = true
	}
	assert.Len(t, seen, 8)
}
