// Package evaluator defines the contract with the external evaluation
// collaborator and runs relaxations through a bounded worker pool. The
// actual force evaluation and local optimization live outside this module.
package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atomevolve/atomevolve-go/internal/types"
)

// Relaxer is the evaluation collaborator: given a candidate it returns the
// relaxed geometry and the potential energy. Implementations typically
// shell out to a force-field or ab-initio code.
type Relaxer interface {
	Relax(ctx context.Context, cand *types.Candidate) (*types.RelaxResult, error)
}

// RelaxerFunc adapts a plain function to the Relaxer interface
type RelaxerFunc func(ctx context.Context, cand *types.Candidate) (*types.RelaxResult, error)

func (f RelaxerFunc) Relax(ctx context.Context, cand *types.Candidate) (*types.RelaxResult, error) {
	return f(ctx, cand)
}

// Pool runs relaxations with bounded parallelism and a per-candidate
// timeout. Failures never abort the batch; they come back as unsuccessful
// results so the caller can mark the candidates failed.
type Pool struct {
	relaxer Relaxer
	workers int
	timeout time.Duration
	logger  *logrus.Logger
}

// NewPool creates a relaxation pool
func NewPool(relaxer Relaxer, cfg types.RelaxConfig, logger *logrus.Logger) *Pool {
	if logger == nil {
		logger = logrus.New()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		relaxer: relaxer,
		workers: workers,
		timeout: time.Duration(cfg.Timeout) * time.Second,
		logger:  logger,
	}
}

// RelaxAll relaxes every candidate and returns one result per input, in
// input order
func (p *Pool) RelaxAll(ctx context.Context, cands []*types.Candidate) []*types.RelaxResult {
	results := make([]*types.RelaxResult, len(cands))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = p.relaxOne(ctx, cands[idx])
			}
		}()
	}

	for i := range cands {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// RelaxOne relaxes a single candidate with the pool's timeout
func (p *Pool) RelaxOne(ctx context.Context, cand *types.Candidate) *types.RelaxResult {
	return p.relaxOne(ctx, cand)
}

func (p *Pool) relaxOne(ctx context.Context, cand *types.Candidate) (result *types.RelaxResult) {
	start := time.Now()

	// A panicking collaborator produces a failed result, not a crash
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"candidate": cand.ID,
				"panic":     r,
			}).Error("Relaxation panicked")
			result = &types.RelaxResult{
				ID:       cand.ID,
				Success:  false,
				Error:    fmt.Sprintf("relaxation panicked: %v", r),
				Duration: time.Since(start),
			}
		}
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res, err := p.relaxer.Relax(ctx, cand)
	if err != nil {
		p.logger.WithError(err).WithField("candidate", cand.ID).Warn("Relaxation failed")
		return &types.RelaxResult{
			ID:       cand.ID,
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}
	}

	res.ID = cand.ID
	res.Success = true
	res.Duration = time.Since(start)
	// Raw score defaults to the negative potential energy
	if res.RawScore == nil {
		score := -res.Energy
		res.RawScore = &score
	}
	return res
}
