package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atomevolve/atomevolve-go/internal/types"
)

// MemoryStore keeps the ledger in process memory. It is used in tests and
// for throwaway searches; it offers the same contract as SQLiteStore minus
// cross-process durability.
type MemoryStore struct {
	mu sync.RWMutex

	initialized  bool
	meta         *types.RunMeta
	candidates   map[string]*types.Candidate
	order        []string
	reservations map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.candidates = make(map[string]*types.Candidate)
	s.reservations = make(map[string]string)
	s.initialized = true
	return nil
}

func (s *MemoryStore) SaveMeta(_ context.Context, meta types.RunMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	m := meta
	s.meta = &m
	return nil
}

func (s *MemoryStore) GetMeta(_ context.Context) (types.RunMeta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return types.RunMeta{}, false, ErrNotInitialized
	}
	if s.meta == nil {
		return types.RunMeta{}, false, nil
	}
	return *s.meta, true, nil
}

func (s *MemoryStore) AddUnrelaxed(_ context.Context, cand *types.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	if cand.ID == "" {
		return errors.New("candidate ID is required")
	}
	if cand.Structure == nil {
		return errors.New("candidate structure is required")
	}
	if _, exists := s.candidates[cand.ID]; exists {
		return fmt.Errorf("candidate %s already exists", cand.ID)
	}

	now := time.Now().UTC()
	stored := *cand
	stored.Structure = cand.Structure.Copy()
	stored.State = types.StateUnrelaxed
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.candidates[cand.ID] = &stored
	s.order = append(s.order, cand.ID)
	return nil
}

func (s *MemoryStore) NextUnrelaxed(_ context.Context) (*types.Candidate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	for _, id := range s.order {
		if c := s.candidates[id]; c.State == types.StateUnrelaxed {
			return copyCandidate(c), true, nil
		}
	}
	return nil, false, nil
}

func (s *MemoryStore) MarkRelaxed(_ context.Context, id string, positions []float64, rawScore float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	c, ok := s.candidates[id]
	if !ok {
		return fmt.Errorf("mark relaxed %s: %w", id, ErrNotFound)
	}
	if len(positions) > 0 {
		if len(positions) != len(c.Structure.Positions) {
			return fmt.Errorf("relaxed positions length %d does not match structure %d",
				len(positions), len(c.Structure.Positions))
		}
		copy(c.Structure.Positions, positions)
	}
	c.State = types.StateRelaxed
	c.RawScore = rawScore
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	c, ok := s.candidates[id]
	if !ok {
		return fmt.Errorf("mark failed %s: %w", id, ErrNotFound)
	}
	c.State = types.StateFailed
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CountUnrelaxed(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return 0, ErrNotInitialized
	}
	n := 0
	for _, c := range s.candidates {
		if c.State == types.StateUnrelaxed {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) AllRelaxed(_ context.Context) ([]*types.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	var out []*types.Candidate
	for _, id := range s.order {
		if c := s.candidates[id]; c.State == types.StateRelaxed {
			out = append(out, copyCandidate(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RawScore > out[j].RawScore
	})
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*types.Candidate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	c, ok := s.candidates[id]
	if !ok {
		return nil, false, nil
	}
	return copyCandidate(c), true, nil
}

func (s *MemoryStore) All(_ context.Context) ([]*types.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	out := make([]*types.Candidate, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyCandidate(s.candidates[id]))
	}
	return out, nil
}

func (s *MemoryStore) Reserve(_ context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	if key == "" {
		return errors.New("reservation key is required")
	}
	if _, exists := s.reservations[key]; exists {
		return fmt.Errorf("reserve %q: %w", key, ErrReserved)
	}
	s.reservations[key] = owner
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	delete(s.reservations, key)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func copyCandidate(c *types.Candidate) *types.Candidate {
	out := *c
	out.Structure = c.Structure.Copy()
	if len(c.ParentIDs) > 0 {
		out.ParentIDs = append([]string(nil), c.ParentIDs...)
	}
	return &out
}
