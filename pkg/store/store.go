// Package store implements the persistent candidate ledger. Every structure
// the optimizer ever creates is appended here, so an interrupted run can be
// restarted against the same store file and resume instead of duplicating
// work. Cooperating processes coordinate through reservation records.
package store

import (
	"context"
	"errors"

	"github.com/atomevolve/atomevolve-go/internal/types"
)

var (
	// ErrReserved is returned when a reservation key is already claimed
	ErrReserved = errors.New("key is already reserved")

	// ErrNotFound is returned when a candidate ID does not exist
	ErrNotFound = errors.New("candidate not found")

	// ErrNotInitialized is returned when the store is used before Init
	ErrNotInitialized = errors.New("store is not initialized")

	// ErrMetaMismatch is returned when a store holds metadata for a
	// different search than the one being resumed
	ErrMetaMismatch = errors.New("store metadata does not match run")
)

// Store defines the persistence operations for the candidate ledger
type Store interface {
	Init(ctx context.Context) error

	// Run metadata, persisted once per store
	SaveMeta(ctx context.Context, meta types.RunMeta) error
	GetMeta(ctx context.Context) (types.RunMeta, bool, error)

	// Ledger operations
	AddUnrelaxed(ctx context.Context, cand *types.Candidate) error
	NextUnrelaxed(ctx context.Context) (*types.Candidate, bool, error)
	MarkRelaxed(ctx context.Context, id string, positions []float64, rawScore float64) error
	MarkFailed(ctx context.Context, id string) error
	CountUnrelaxed(ctx context.Context) (int, error)
	AllRelaxed(ctx context.Context) ([]*types.Candidate, error)
	Get(ctx context.Context, id string) (*types.Candidate, bool, error)
	All(ctx context.Context) ([]*types.Candidate, error)

	// Reservation protocol for cooperating processes. Reserve claims a
	// not-yet-existing slot keyed by descriptive parameters; Release
	// drops the claim after a failure.
	Reserve(ctx context.Context, key, owner string) error
	Release(ctx context.Context, key string) error

	Close() error
}
