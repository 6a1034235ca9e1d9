// Package comparator decides whether two relaxed candidates are the same
// structure. The population tracker uses this to keep duplicates out of the
// competitive set.
package comparator

import (
	"math"

	"github.com/atomevolve/atomevolve-go/internal/geometry"
	"github.com/atomevolve/atomevolve-go/internal/types"
)

// Comparator reports whether two relaxed candidates should be treated as
// the same structure
type Comparator interface {
	LooksLike(a, b *types.Candidate) bool
}

// InteratomicDistanceComparator compares candidates through their sorted
// interatomic distance lists. Two candidates are considered identical when
// their raw scores differ by less than ScoreDelta and the distance lists
// agree within the cumulative and per-pair tolerances.
type InteratomicDistanceComparator struct {
	// ScoreDelta is the raw-score window within which structures can
	// still be the same minimum
	ScoreDelta float64

	// PairCumDiff bounds the normalized cumulative difference of the
	// sorted distance lists
	PairCumDiff float64

	// PairMaxDiff bounds the largest single pair-distance deviation
	PairMaxDiff float64
}

// NewInteratomicDistanceComparator creates a comparator with the given
// tolerances
func NewInteratomicDistanceComparator(scoreDelta, pairCumDiff, pairMaxDiff float64) *InteratomicDistanceComparator {
	return &InteratomicDistanceComparator{
		ScoreDelta:  scoreDelta,
		PairCumDiff: pairCumDiff,
		PairMaxDiff: pairMaxDiff,
	}
}

// LooksLike reports whether a and b are the same structure within tolerance.
// Candidates with different compositions are never alike.
func (c *InteratomicDistanceComparator) LooksLike(a, b *types.Candidate) bool {
	if !a.Relaxed() || !b.Relaxed() {
		// Unrelaxed candidates are never compared
		return false
	}
	if math.Abs(a.RawScore-b.RawScore) >= c.ScoreDelta {
		return false
	}
	if !sameComposition(a.Structure, b.Structure) {
		return false
	}

	da := geometry.SortedPairDistances(a.Structure)
	db := geometry.SortedPairDistances(b.Structure)
	if len(da) != len(db) {
		return false
	}
	if len(da) == 0 {
		return true
	}

	var cum, total, maxDiff float64
	for i := range da {
		diff := math.Abs(da[i] - db[i])
		cum += diff
		total += 0.5 * (da[i] + db[i])
		if diff > maxDiff {
			maxDiff = diff
		}
	}
	if total > 0 {
		cum /= total
	}

	return cum < c.PairCumDiff && maxDiff < c.PairMaxDiff
}

func sameComposition(a, b *types.Structure) bool {
	if a.NAtoms() != b.NAtoms() {
		return false
	}
	counts := make(map[int]int)
	for _, z := range a.Numbers {
		counts[z]++
	}
	for _, z := range b.Numbers {
		counts[z]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}
