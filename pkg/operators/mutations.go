package operators

import (
	"fmt"
	"math/rand"

	"github.com/atomevolve/atomevolve-go/internal/constants"
	"github.com/atomevolve/atomevolve-go/internal/geometry"
	"github.com/atomevolve/atomevolve-go/internal/types"
)

// RattleMutation displaces a random fraction of the atoms by Gaussian
// noise. At least one atom is always moved.
type RattleMutation struct {
	Constraints Constraints

	// Strength is the standard deviation of the displacement in Angstrom
	Strength float64

	// Fraction of atoms to rattle
	Fraction float64
}

// NewRattleMutation creates a rattle operator
func NewRattleMutation(c Constraints, strength, fraction float64) *RattleMutation {
	return &RattleMutation{Constraints: c, Strength: strength, Fraction: fraction}
}

func (m *RattleMutation) Name() string {
	return constants.OriginRattle
}

func (m *RattleMutation) NParents() int {
	return 1
}

func (m *RattleMutation) Apply(rng *rand.Rand, parents ...*types.Candidate) (*types.Structure, error) {
	if len(parents) != 1 {
		return nil, fmt.Errorf("rattle needs one parent, got %d", len(parents))
	}
	parent := parents[0].Structure

	for attempt := 0; attempt < m.Constraints.attempts(); attempt++ {
		s := parent.Copy()
		moved := 0
		for i := 0; i < s.NAtoms(); i++ {
			if rng.Float64() > m.Fraction {
				continue
			}
			m.rattleAtom(rng, s, i)
			moved++
		}
		if moved == 0 {
			m.rattleAtom(rng, s, rng.Intn(s.NAtoms()))
		}
		if !geometry.TooClose(s, m.Constraints.MinDistFactor) {
			return s, nil
		}
	}

	return nil, ErrNoValidStructure
}

func (m *RattleMutation) rattleAtom(rng *rand.Rand, s *types.Structure, i int) {
	s.Positions[3*i] += rng.NormFloat64() * m.Strength
	s.Positions[3*i+1] += rng.NormFloat64() * m.Strength
	s.Positions[3*i+2] += rng.NormFloat64() * m.Strength
}

// MirrorMutation folds the structure through a random plane containing its
// centroid: atoms on the negative side are replaced by their mirror images.
// Composition and atom count are preserved by construction.
type MirrorMutation struct {
	Constraints Constraints
}

// NewMirrorMutation creates a mirror operator
func NewMirrorMutation(c Constraints) *MirrorMutation {
	return &MirrorMutation{Constraints: c}
}

func (m *MirrorMutation) Name() string {
	return constants.OriginMirror
}

func (m *MirrorMutation) NParents() int {
	return 1
}

func (m *MirrorMutation) Apply(rng *rand.Rand, parents ...*types.Candidate) (*types.Structure, error) {
	if len(parents) != 1 {
		return nil, fmt.Errorf("mirror needs one parent, got %d", len(parents))
	}
	parent := parents[0].Structure

	for attempt := 0; attempt < m.Constraints.attempts(); attempt++ {
		s := parent.Copy()
		ctr := geometry.Centroid(s)
		n := geometry.RandomUnitVector(rng.Float64(), rng.Float64())

		for i := 0; i < s.NAtoms(); i++ {
			if geometry.SignedPlaneDistance(s, i, ctr, n) < 0 {
				p := geometry.Reflect(s, i, ctr, n)
				s.Positions[3*i] = p[0]
				s.Positions[3*i+1] = p[1]
				s.Positions[3*i+2] = p[2]
			}
		}

		if !geometry.TooClose(s, m.Constraints.MinDistFactor) {
			return s, nil
		}
	}

	return nil, ErrNoValidStructure
}

// PermutationMutation swaps the positions of pairs of unlike atoms. It is
// only applicable to structures with at least two species.
type PermutationMutation struct {
	Constraints Constraints
}

// NewPermutationMutation creates a permutation operator
func NewPermutationMutation(c Constraints) *PermutationMutation {
	return &PermutationMutation{Constraints: c}
}

func (m *PermutationMutation) Name() string {
	return constants.OriginPermutation
}

func (m *PermutationMutation) NParents() int {
	return 1
}

func (m *PermutationMutation) Apply(rng *rand.Rand, parents ...*types.Candidate) (*types.Structure, error) {
	if len(parents) != 1 {
		return nil, fmt.Errorf("permutation needs one parent, got %d", len(parents))
	}
	parent := parents[0].Structure

	if len(speciesCounts(parent.Numbers)) < 2 {
		return nil, fmt.Errorf("%w: permutation requires at least two species", ErrNotApplicable)
	}

	// Swap roughly a quarter of the atoms, at least one pair
	nSwaps := parent.NAtoms() / 4
	if nSwaps < 1 {
		nSwaps = 1
	}

	for attempt := 0; attempt < m.Constraints.attempts(); attempt++ {
		s := parent.Copy()
		for k := 0; k < nSwaps; k++ {
			i, j, ok := pickUnlikePair(rng, s)
			if !ok {
				break
			}
			swapPositions(s, i, j)
		}
		if !geometry.TooClose(s, m.Constraints.MinDistFactor) {
			return s, nil
		}
	}

	return nil, ErrNoValidStructure
}

func pickUnlikePair(rng *rand.Rand, s *types.Structure) (int, int, bool) {
	n := s.NAtoms()
	for tries := 0; tries < 10*n; tries++ {
		i, j := rng.Intn(n), rng.Intn(n)
		if s.Numbers[i] != s.Numbers[j] {
			return i, j, true
		}
	}
	return 0, 0, false
}

func swapPositions(s *types.Structure, i, j int) {
	for k := 0; k < 3; k++ {
		s.Positions[3*i+k], s.Positions[3*j+k] = s.Positions[3*j+k], s.Positions[3*i+k]
	}
}
