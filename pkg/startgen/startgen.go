// Package startgen generates the random initial candidates that seed the
// store before the evolution loop starts.
package startgen

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/atomevolve/atomevolve-go/internal/constants"
	"github.com/atomevolve/atomevolve-go/internal/geometry"
	"github.com/atomevolve/atomevolve-go/internal/types"
)

// StartGenerator places atoms uniformly inside a box subject to the
// minimum interatomic distance constraints
type StartGenerator struct {
	// Stoichiometry is the list of atomic numbers each candidate gets
	Stoichiometry []int

	// Box spans the sampling volume: origin plus three cell vectors
	Box       [9]float64
	BoxOrigin [3]float64

	// MinDistFactor scales the covalent-radii contact limits
	MinDistFactor float64

	// MaxAttempts bounds retries per atom placement
	MaxAttempts int
}

// New creates a start generator
func New(cfg types.StartGenConfig, stoichiometry []int, minDistFactor float64) *StartGenerator {
	return &StartGenerator{
		Stoichiometry: stoichiometry,
		Box:           cfg.Box,
		BoxOrigin:     cfg.BoxOrigin,
		MinDistFactor: minDistFactor,
		MaxAttempts:   cfg.MaxAttempts,
	}
}

// Generate builds one unrelaxed candidate with random positions. It fails
// once the per-atom attempt budget is spent, which usually means the box is
// too small for the stoichiometry.
func (g *StartGenerator) Generate(rng *rand.Rand) (*types.Candidate, error) {
	if len(g.Stoichiometry) == 0 {
		return nil, fmt.Errorf("start generator has no stoichiometry")
	}

	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	s := &types.Structure{
		Numbers:   make([]int, 0, len(g.Stoichiometry)),
		Positions: make([]float64, 0, 3*len(g.Stoichiometry)),
	}

	for _, z := range g.Stoichiometry {
		placed := false
		for attempt := 0; attempt < attempts; attempt++ {
			p := g.randomPoint(rng)
			if geometry.PointTooClose(s, s.NAtoms(), z, p, g.MinDistFactor) {
				continue
			}
			s.Numbers = append(s.Numbers, z)
			s.Positions = append(s.Positions, p[0], p[1], p[2])
			placed = true
			break
		}
		if !placed {
			return nil, fmt.Errorf("could not place atom Z=%d within %d attempts", z, attempts)
		}
	}

	return &types.Candidate{
		ID:        uuid.New().String(),
		Structure: s,
		Origin:    constants.OriginStartGenerator,
		State:     types.StateUnrelaxed,
	}, nil
}

func (g *StartGenerator) randomPoint(rng *rand.Rand) [3]float64 {
	u, v, w := rng.Float64(), rng.Float64(), rng.Float64()
	var p [3]float64
	for k := 0; k < 3; k++ {
		p[k] = g.BoxOrigin[k] + u*g.Box[k] + v*g.Box[3+k] + w*g.Box[6+k]
	}
	return p
}
