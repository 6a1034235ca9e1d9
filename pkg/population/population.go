// Package population maintains the current competitive subset of relaxed
// candidates and selects parents for the variation operators.
package population

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/atomevolve/atomevolve-go/internal/types"
	"github.com/atomevolve/atomevolve-go/pkg/comparator"
	"github.com/atomevolve/atomevolve-go/pkg/store"
)

// ErrTooSmall is returned when parent selection needs more candidates than
// the population currently holds
var ErrTooSmall = errors.New("population holds fewer than two candidates")

// Population tracks the top-N relaxed candidates by raw score,
// deduplicated through a structural comparator
type Population struct {
	store store.Store
	comp  comparator.Comparator
	size  int

	// useDamping biases selection away from overused parents
	useDamping float64

	mu       sync.RWMutex
	current  []*types.Candidate
	useCount map[string]int

	logger *logrus.Logger
}

// New creates a population tracker over the given store
func New(st store.Store, comp comparator.Comparator, cfg types.PopulationConfig, logger *logrus.Logger) *Population {
	if logger == nil {
		logger = logrus.New()
	}
	return &Population{
		store:      st,
		comp:       comp,
		size:       cfg.Size,
		useDamping: cfg.UseDamping,
		useCount:   make(map[string]int),
		logger:     logger,
	}
}

// Update re-derives the competitive set from the store. Relaxed candidates
// arrive score-descending; duplicates keep their best-scoring
// representative and the set is truncated to the configured size.
func (p *Population) Update(ctx context.Context) error {
	relaxed, err := p.store.AllRelaxed(ctx)
	if err != nil {
		return fmt.Errorf("population update: %w", err)
	}

	selected := make([]*types.Candidate, 0, p.size)
	for _, cand := range relaxed {
		if len(selected) >= p.size {
			break
		}
		dup := false
		for _, kept := range selected {
			if p.comp.LooksLike(cand, kept) {
				dup = true
				break
			}
		}
		if !dup {
			selected = append(selected, cand)
		}
	}

	p.mu.Lock()
	p.current = selected
	p.mu.Unlock()

	if len(selected) > 0 {
		p.logger.WithFields(logrus.Fields{
			"size": len(selected),
			"best": selected[0].RawScore,
		}).Debug("Population updated")
	}

	return nil
}

// Current returns the competitive set, fitness-descending
func (p *Population) Current() []*types.Candidate {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*types.Candidate, len(p.current))
	copy(out, p.current)
	return out
}

// Best returns the highest-scoring candidate, or nil while the population
// is empty
func (p *Population) Best() *types.Candidate {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.current) == 0 {
		return nil
	}
	return p.current[0]
}

// Len returns the current population size
func (p *Population) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.current)
}

// GetTwoCandidates samples two distinct parents, biased toward higher rank
// and away from frequently used candidates
func (p *Population) GetTwoCandidates(rng *rand.Rand) (*types.Candidate, *types.Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.current) < 2 {
		return nil, nil, ErrTooSmall
	}

	weights := p.selectionWeights()

	first := sampleIndex(rng, weights, -1)
	second := sampleIndex(rng, weights, first)

	a, b := p.current[first], p.current[second]
	p.useCount[a.ID]++
	p.useCount[b.ID]++

	return a, b, nil
}

// GetOneCandidate samples a single parent for mutation operators
func (p *Population) GetOneCandidate(rng *rand.Rand) (*types.Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.current) == 0 {
		return nil, ErrTooSmall
	}

	idx := sampleIndex(rng, p.selectionWeights(), -1)
	cand := p.current[idx]
	p.useCount[cand.ID]++
	return cand, nil
}

// selectionWeights computes rank-based tanh fitness damped by prior use.
// Rank 0 (the best) gets weight near 1, the worst near 0.
func (p *Population) selectionWeights() []float64 {
	n := len(p.current)
	weights := make([]float64, n)
	for r, cand := range p.current {
		var f float64
		if n == 1 {
			f = 1.0
		} else {
			f = 0.5 * (1 - math.Tanh(2*float64(r)/float64(n-1)-1))
		}
		if p.useDamping > 0 {
			f /= math.Sqrt(1 + p.useDamping*float64(p.useCount[cand.ID]))
		}
		weights[r] = f
	}
	return weights
}

// sampleIndex draws an index proportionally to weights, excluding one index
func sampleIndex(rng *rand.Rand, weights []float64, exclude int) int {
	total := 0.0
	for i, w := range weights {
		if i == exclude {
			continue
		}
		total += w
	}
	if total <= 0 {
		// Degenerate weights, fall back to uniform choice
		for {
			idx := rng.Intn(len(weights))
			if idx != exclude {
				return idx
			}
		}
	}

	x := rng.Float64() * total
	for i, w := range weights {
		if i == exclude {
			continue
		}
		x -= w
		if x <= 0 {
			return i
		}
	}
	// Floating point leftovers land on the last eligible index
	for i := len(weights) - 1; i >= 0; i-- {
		if i != exclude {
			return i
		}
	}
	return 0
}
