package operators

import (
	"errors"
	"math/rand"
)

// WeightedOperation pairs an operator with its selection weight
type WeightedOperation struct {
	Operator Operator
	Weight   float64
}

// OperationSelector draws operators at random, proportional to their
// configured weights
type OperationSelector struct {
	ops   []WeightedOperation
	total float64
}

// NewOperationSelector creates a selector over the given weighted operators.
// Entries with non-positive weight are ignored.
func NewOperationSelector(ops []WeightedOperation) (*OperationSelector, error) {
	s := &OperationSelector{}
	for _, op := range ops {
		if op.Operator == nil {
			return nil, errors.New("operation selector requires non-nil operators")
		}
		if op.Weight <= 0 {
			continue
		}
		s.ops = append(s.ops, op)
		s.total += op.Weight
	}
	if len(s.ops) == 0 {
		return nil, errors.New("operation selector requires at least one positive weight")
	}
	return s, nil
}

// Choose picks one operator proportionally to weight
func (s *OperationSelector) Choose(rng *rand.Rand) Operator {
	x := rng.Float64() * s.total
	for _, op := range s.ops {
		x -= op.Weight
		if x <= 0 {
			return op.Operator
		}
	}
	return s.ops[len(s.ops)-1].Operator
}

// Operators returns the configured operators in order
func (s *OperationSelector) Operators() []Operator {
	out := make([]Operator, len(s.ops))
	for i, op := range s.ops {
		out[i] = op.Operator
	}
	return out
}
