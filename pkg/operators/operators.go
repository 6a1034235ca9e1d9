// Package operators implements the variation operators that produce new
// candidate structures from members of the population: cut-and-splice
// pairing and the rattle, mirror and permutation mutations. Every operator
// honors the minimum interatomic distance constraints and gives up with
// ErrNoValidStructure once its retry budget is spent.
package operators

import (
	"errors"
	"math/rand"

	"github.com/atomevolve/atomevolve-go/internal/types"
)

var (
	// ErrNoValidStructure is returned when no constraint-satisfying
	// child could be built within the attempt budget
	ErrNoValidStructure = errors.New("no valid structure found within attempt budget")

	// ErrNotApplicable is returned when an operator cannot act on the
	// given parents at all, e.g. permutation on a single species
	ErrNotApplicable = errors.New("operator not applicable to parents")
)

// Operator produces a child structure from one or more parent candidates
type Operator interface {
	Name() string

	// NParents is the number of parents the operator consumes
	NParents() int

	// Apply builds a child structure. The child is unrelaxed and owns
	// no metadata; the caller wraps it into a candidate.
	Apply(rng *rand.Rand, parents ...*types.Candidate) (*types.Structure, error)
}

// Constraints carries the shared distance and retry settings
type Constraints struct {
	// MinDistFactor scales the covalent-radii sums that define the
	// closest allowed approach of two atoms
	MinDistFactor float64

	// MaxAttempts bounds the retries before giving up
	MaxAttempts int
}

func (c Constraints) attempts() int {
	if c.MaxAttempts <= 0 {
		return 1
	}
	return c.MaxAttempts
}
