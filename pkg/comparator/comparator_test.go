package comparator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atomevolve/atomevolve-go/internal/types"
)

func relaxedCandidate(score float64, numbers []int, positions []float64) *types.Candidate {
	return &types.Candidate{
		ID:        "c",
		State:     types.StateRelaxed,
		RawScore:  score,
		Structure: &types.Structure{Numbers: numbers, Positions: positions},
	}
}

func TestLooksLikeIdenticalStructures(t *testing.T) {
	c := NewInteratomicDistanceComparator(0.02, 0.015, 0.7)

	a := relaxedCandidate(-10.0, []int{29, 29, 29}, []float64{0, 0, 0, 2.5, 0, 0, 0, 2.5, 0})
	b := relaxedCandidate(-10.001, []int{29, 29, 29}, []float64{0, 0, 0, 2.5, 0, 0, 0, 2.5, 0})

	assert.True(t, c.LooksLike(a, b))
}

func TestLooksLikeTranslationInvariant(t *testing.T) {
	c := NewInteratomicDistanceComparator(0.02, 0.015, 0.7)

	a := relaxedCandidate(-10.0, []int{29, 29}, []float64{0, 0, 0, 2.5, 0, 0})
	// Same dimer, shifted and rotated onto the y axis
	b := relaxedCandidate(-10.0, []int{29, 29}, []float64{5, 5, 5, 5, 7.5, 5})

	assert.True(t, c.LooksLike(a, b))
}

func TestLooksLikeScoreGate(t *testing.T) {
	c := NewInteratomicDistanceComparator(0.02, 0.015, 0.7)

	a := relaxedCandidate(-10.0, []int{29, 29}, []float64{0, 0, 0, 2.5, 0, 0})
	b := relaxedCandidate(-9.0, []int{29, 29}, []float64{0, 0, 0, 2.5, 0, 0})

	// Same geometry but raw scores differ by more than the window
	assert.False(t, c.LooksLike(a, b))
}

func TestLooksLikeDifferentGeometry(t *testing.T) {
	c := NewInteratomicDistanceComparator(0.5, 0.015, 0.7)

	a := relaxedCandidate(-10.0, []int{29, 29, 29}, []float64{0, 0, 0, 2.5, 0, 0, 5.0, 0, 0})
	b := relaxedCandidate(-10.0, []int{29, 29, 29}, []float64{0, 0, 0, 2.5, 0, 0, 1.25, 2.2, 0})

	assert.False(t, c.LooksLike(a, b))
}

func TestLooksLikeDifferentComposition(t *testing.T) {
	c := NewInteratomicDistanceComparator(1.0, 1.0, 10.0)

	a := relaxedCandidate(-10.0, []int{29, 29}, []float64{0, 0, 0, 2.5, 0, 0})
	b := relaxedCandidate(-10.0, []int{29, 47}, []float64{0, 0, 0, 2.5, 0, 0})

	assert.False(t, c.LooksLike(a, b))
}

func TestLooksLikeUnrelaxedNeverCompared(t *testing.T) {
	c := NewInteratomicDistanceComparator(1.0, 1.0, 10.0)

	a := relaxedCandidate(-10.0, []int{29}, []float64{0, 0, 0})
	b := relaxedCandidate(-10.0, []int{29}, []float64{0, 0, 0})
	b.State = types.StateUnrelaxed

	assert.False(t, c.LooksLike(a, b))
}
