package operators

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/atomevolve/atomevolve-go/internal/constants"
	"github.com/atomevolve/atomevolve-go/internal/geometry"
	"github.com/atomevolve/atomevolve-go/internal/types"
)

// CutAndSplicePairing combines two parents by cutting both through a random
// plane and splicing the halves together. The child inherits the parents'
// common stoichiometry; species counts are repaired by trading atoms close
// to the cut plane.
type CutAndSplicePairing struct {
	Constraints Constraints
}

// NewCutAndSplicePairing creates a pairing operator with the given
// constraints
func NewCutAndSplicePairing(c Constraints) *CutAndSplicePairing {
	return &CutAndSplicePairing{Constraints: c}
}

func (p *CutAndSplicePairing) Name() string {
	return constants.OriginPairing
}

func (p *CutAndSplicePairing) NParents() int {
	return 2
}

// candidate atom for the splice, tagged with its signed plane distance
type spliceAtom struct {
	z    int
	pos  [3]float64
	dist float64
}

func (p *CutAndSplicePairing) Apply(rng *rand.Rand, parents ...*types.Candidate) (*types.Structure, error) {
	if len(parents) != 2 {
		return nil, fmt.Errorf("pairing needs two parents, got %d", len(parents))
	}
	a, b := parents[0].Structure, parents[1].Structure
	if !sameStoichiometry(a, b) {
		return nil, fmt.Errorf("%w: parents differ in stoichiometry", ErrNotApplicable)
	}

	// Work on centered copies so the cut plane passes through both
	// parents' shared centroid
	ca := centered(a)
	cb := centered(b)
	target := speciesCounts(a.Numbers)

	for attempt := 0; attempt < p.Constraints.attempts(); attempt++ {
		n := geometry.RandomUnitVector(rng.Float64(), rng.Float64())
		origin := [3]float64{}

		var child []spliceAtom
		var unused []spliceAtom
		for i := 0; i < ca.NAtoms(); i++ {
			d := geometry.SignedPlaneDistance(ca, i, origin, n)
			at := spliceAtom{z: ca.Numbers[i], pos: atomPos(ca, i), dist: d}
			if d >= 0 {
				child = append(child, at)
			} else {
				unused = append(unused, at)
			}
		}
		for i := 0; i < cb.NAtoms(); i++ {
			d := geometry.SignedPlaneDistance(cb, i, origin, n)
			at := spliceAtom{z: cb.Numbers[i], pos: atomPos(cb, i), dist: d}
			if d < 0 {
				child = append(child, at)
			} else {
				unused = append(unused, at)
			}
		}

		child = repairStoichiometry(child, unused, target)
		if child == nil {
			continue
		}

		s := spliceToStructure(child, a)
		if !geometry.TooClose(s, p.Constraints.MinDistFactor) {
			return s, nil
		}
	}

	return nil, ErrNoValidStructure
}

// repairStoichiometry trims over-represented species (dropping atoms
// nearest the cut plane first) and refills deficits from the unused pool
// (taking atoms nearest the plane). Returns nil when repair is impossible.
func repairStoichiometry(child, unused []spliceAtom, target map[int]int) []spliceAtom {
	have := make(map[int]int)
	for _, at := range child {
		have[at.z]++
	}

	// Trim excess per species
	for z, want := range target {
		excess := have[z] - want
		if excess <= 0 {
			continue
		}
		idxs := make([]int, 0)
		for i, at := range child {
			if at.z == z {
				idxs = append(idxs, i)
			}
		}
		sort.Slice(idxs, func(i, j int) bool {
			return math.Abs(child[idxs[i]].dist) < math.Abs(child[idxs[j]].dist)
		})
		drop := make(map[int]bool, excess)
		for _, i := range idxs[:excess] {
			drop[i] = true
		}
		kept := child[:0]
		for i, at := range child {
			if !drop[i] {
				kept = append(kept, at)
			}
		}
		child = kept
		have[z] = want
	}

	// Refill deficits from the unused pool
	sort.Slice(unused, func(i, j int) bool {
		return math.Abs(unused[i].dist) < math.Abs(unused[j].dist)
	})
	for z, want := range target {
		for have[z] < want {
			found := false
			for i, at := range unused {
				if at.z == z {
					child = append(child, at)
					unused = append(unused[:i], unused[i+1:]...)
					have[z]++
					found = true
					break
				}
			}
			if !found {
				return nil
			}
		}
	}

	return child
}

func spliceToStructure(atoms []spliceAtom, template *types.Structure) *types.Structure {
	s := &types.Structure{
		Numbers:   make([]int, len(atoms)),
		Positions: make([]float64, 3*len(atoms)),
		Cell:      template.Cell,
		PBC:       template.PBC,
	}
	for i, at := range atoms {
		s.Numbers[i] = at.z
		s.Positions[3*i] = at.pos[0]
		s.Positions[3*i+1] = at.pos[1]
		s.Positions[3*i+2] = at.pos[2]
	}
	return s
}

func centered(s *types.Structure) *types.Structure {
	c := s.Copy()
	ctr := geometry.Centroid(c)
	geometry.Translate(c, [3]float64{-ctr[0], -ctr[1], -ctr[2]})
	return c
}

func atomPos(s *types.Structure, i int) [3]float64 {
	return [3]float64{s.Positions[3*i], s.Positions[3*i+1], s.Positions[3*i+2]}
}

func speciesCounts(numbers []int) map[int]int {
	counts := make(map[int]int)
	for _, z := range numbers {
		counts[z]++
	}
	return counts
}

func sameStoichiometry(a, b *types.Structure) bool {
	if a.NAtoms() != b.NAtoms() {
		return false
	}
	ca, cb := speciesCounts(a.Numbers), speciesCounts(b.Numbers)
	for z, n := range ca {
		if cb[z] != n {
			return false
		}
	}
	return true
}
