// Package run drives the evolutionary search: seeding the store, relaxing
// pending candidates, breeding offspring and tracking convergence. The loop
// is restartable at any point; all state of record lives in the store.
package run

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/atomevolve/atomevolve-go/internal/constants"
	"github.com/atomevolve/atomevolve-go/internal/types"
	"github.com/atomevolve/atomevolve-go/pkg/comparator"
	"github.com/atomevolve/atomevolve-go/pkg/evaluator"
	"github.com/atomevolve/atomevolve-go/pkg/operators"
	"github.com/atomevolve/atomevolve-go/pkg/population"
	"github.com/atomevolve/atomevolve-go/pkg/startgen"
	"github.com/atomevolve/atomevolve-go/pkg/store"
)

// Runner owns one evolutionary search over a candidate store
type Runner struct {
	cfg   *types.Config
	st    store.Store
	pop   *population.Population
	sel   *operators.OperationSelector
	gen   *startgen.StartGenerator
	pool  *evaluator.Pool
	rng   *rand.Rand
	owner string

	stoichiometry []int

	mu    sync.RWMutex
	stats types.RunStats

	// convergence bookkeeping
	lastImprovement int64

	logger *logrus.Logger
}

// New creates a runner. The relaxer is the external evaluation
// collaborator; stoichiometry is the species list every candidate carries.
func New(cfg *types.Config, st store.Store, relaxer evaluator.Relaxer, stoichiometry []int, logger *logrus.Logger) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if relaxer == nil {
		return nil, errors.New("relaxer is required")
	}
	if len(stoichiometry) == 0 {
		return nil, errors.New("stoichiometry is required")
	}
	if logger == nil {
		logger = logrus.New()
		if cfg.Run.Verbose {
			logger.SetLevel(logrus.DebugLevel)
		}
	}

	comp := comparator.NewInteratomicDistanceComparator(
		cfg.Population.ScoreDelta, cfg.Population.PairCumDiff, cfg.Population.PairMaxDiff)

	constraints := operators.Constraints{
		MinDistFactor: cfg.Operators.MinDistFactor,
		MaxAttempts:   cfg.Operators.MaxAttempts,
	}
	sel, err := operators.NewOperationSelector([]operators.WeightedOperation{
		{Operator: operators.NewCutAndSplicePairing(constraints), Weight: cfg.Operators.PairingWeight},
		{Operator: operators.NewRattleMutation(constraints, cfg.Operators.RattleStrength, cfg.Operators.RattleFraction), Weight: cfg.Operators.RattleWeight},
		{Operator: operators.NewMirrorMutation(constraints), Weight: cfg.Operators.MirrorWeight},
		{Operator: operators.NewPermutationMutation(constraints), Weight: cfg.Operators.PermutationWeight},
	})
	if err != nil {
		return nil, fmt.Errorf("build operators: %w", err)
	}

	seed := cfg.Run.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Runner{
		cfg:           cfg,
		st:            st,
		pop:           population.New(st, comp, cfg.Population, logger),
		sel:           sel,
		gen:           startgen.New(cfg.StartGen, stoichiometry, cfg.Operators.MinDistFactor),
		pool:          evaluator.NewPool(relaxer, cfg.Relax, logger),
		rng:           rand.New(rand.NewSource(seed)),
		owner:         uuid.New().String(),
		stoichiometry: stoichiometry,
		stats:         types.RunStats{StartTime: time.Now()},
		logger:        logger,
	}, nil
}

// Population exposes the population tracker, e.g. for inspecting the final
// competitive set after Run returns
func (r *Runner) Population() *population.Population {
	return r.pop
}

// Stats returns a snapshot of the run statistics
func (r *Runner) Stats() types.RunStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := r.stats
	stats.LastUpdate = time.Now()
	return stats
}

// Run executes the full search: verify or write run metadata, seed the
// store, relax anything pending, then breed until a stop condition hits
func (r *Runner) Run(ctx context.Context) error {
	if err := r.st.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	if err := r.checkMeta(ctx); err != nil {
		return err
	}

	if err := r.seed(ctx); err != nil {
		return fmt.Errorf("seed store: %w", err)
	}

	if err := r.relaxPending(ctx); err != nil {
		return fmt.Errorf("relax pending: %w", err)
	}

	if err := r.adoptBest(ctx); err != nil {
		return err
	}

	if err := r.evolve(ctx); err != nil {
		return err
	}

	if err := r.pop.Update(ctx); err != nil {
		return err
	}

	if best := r.pop.Best(); best != nil {
		r.logger.WithFields(logrus.Fields{
			"best":        best.ID,
			"raw_score":   best.RawScore,
			"relaxations": r.Stats().TotalRelaxations,
		}).Info("Search finished")
	}

	return nil
}

// checkMeta persists the run description on first contact and verifies it
// on resume, so two different searches never share a store by accident
func (r *Runner) checkMeta(ctx context.Context) error {
	meta, ok, err := r.st.GetMeta(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return r.st.SaveMeta(ctx, types.RunMeta{
			Stoichiometry: r.stoichiometry,
			CreatedAt:     time.Now().UTC(),
		})
	}

	if len(meta.Stoichiometry) != len(r.stoichiometry) {
		return fmt.Errorf("%w: store has %d atoms, run has %d",
			store.ErrMetaMismatch, len(meta.Stoichiometry), len(r.stoichiometry))
	}
	for i, z := range meta.Stoichiometry {
		if z != r.stoichiometry[i] {
			return fmt.Errorf("%w: species differ at index %d", store.ErrMetaMismatch, i)
		}
	}
	r.logger.WithField("created", meta.CreatedAt).Info("Resuming existing store")
	return nil
}

// seed fills the store with random starting candidates. Each seed slot is
// reserved by key, so re-runs and parallel workers skip slots that are
// already claimed instead of duplicating them.
func (r *Runner) seed(ctx context.Context) error {
	existing, err := r.st.All(ctx)
	if err != nil {
		return err
	}
	have := 0
	for _, cand := range existing {
		if cand.Origin == constants.OriginStartGenerator {
			have++
		}
	}
	if have >= r.cfg.StartGen.InitialSize {
		return nil
	}

	created := 0
	for slot := 0; slot < r.cfg.StartGen.InitialSize; slot++ {
		key := fmt.Sprintf("seed:%d", slot)
		if err := r.st.Reserve(ctx, key, r.owner); err != nil {
			if errors.Is(err, store.ErrReserved) {
				continue
			}
			return err
		}

		cand, err := r.gen.Generate(r.rng)
		if err != nil {
			_ = r.st.Release(ctx, key)
			return err
		}
		if err := r.st.AddUnrelaxed(ctx, cand); err != nil {
			_ = r.st.Release(ctx, key)
			return err
		}
		created++
	}

	r.logger.WithFields(logrus.Fields{
		"existing": have,
		"created":  created,
	}).Info("Seeded start population")
	return nil
}

// relaxPending relaxes every unrelaxed candidate in the store through the
// worker pool. After a crash this picks up exactly the interrupted work.
func (r *Runner) relaxPending(ctx context.Context) error {
	all, err := r.st.All(ctx)
	if err != nil {
		return err
	}

	var pending []*types.Candidate
	for _, cand := range all {
		if cand.State == types.StateUnrelaxed {
			pending = append(pending, cand)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	r.logger.WithField("pending", len(pending)).Info("Relaxing pending candidates")

	results := r.pool.RelaxAll(ctx, pending)
	for _, res := range results {
		if err := r.record(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

// adoptBest primes the process-local best from what the store already
// holds, so a resumed run whose persisted best satisfies the target score
// stops instead of breeding through the whole budget
func (r *Runner) adoptBest(ctx context.Context) error {
	if err := r.pop.Update(ctx); err != nil {
		return err
	}
	best := r.pop.Best()
	if best == nil {
		return nil
	}

	r.mu.Lock()
	if r.stats.BestID == "" || best.RawScore > r.stats.BestScore {
		r.stats.BestScore = best.RawScore
		r.stats.BestID = best.ID
	}
	r.mu.Unlock()
	return nil
}

// evolve runs the breeding loop until a stop condition is met
func (r *Runner) evolve(ctx context.Context) error {
	skips := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats := r.Stats()
		if stats.TotalRelaxations >= int64(r.cfg.Run.MaxRelaxations) {
			r.logger.WithField("relaxations", stats.TotalRelaxations).Info("Relaxation budget spent")
			return nil
		}
		if r.cfg.Run.TargetScore != nil && stats.BestID != "" &&
			stats.BestScore >= *r.cfg.Run.TargetScore {
			r.logger.WithField("best", stats.BestScore).Info("Target score reached")
			return nil
		}
		if r.stagnated(stats) {
			r.logger.WithField("window", r.cfg.Run.StagnationWindow).Info("Search stagnated")
			return nil
		}

		if err := r.pop.Update(ctx); err != nil {
			return err
		}
		if r.pop.Len() < 2 {
			// Not enough survivors to breed from; top up with fresh
			// random candidates
			if err := r.topUp(ctx); err != nil {
				return err
			}
			continue
		}

		progressed, err := r.breedOne(ctx)
		if err != nil {
			return err
		}
		if progressed {
			skips = 0
			continue
		}
		skips++
		if skips >= r.cfg.Operators.MaxAttempts {
			// Every combination we draw is claimed or failing; inject
			// fresh blood rather than spin
			if err := r.topUp(ctx); err != nil {
				return err
			}
			skips = 0
		}
	}
}

// breedOne performs a single reserve-operate-relax cycle. It reports
// whether a relaxation actually happened; a claimed combination or a
// failed operator is a no-op, not an error.
func (r *Runner) breedOne(ctx context.Context) (bool, error) {
	op := r.sel.Choose(r.rng)

	var parents []*types.Candidate
	switch op.NParents() {
	case 2:
		a, b, err := r.pop.GetTwoCandidates(r.rng)
		if err != nil {
			return false, err
		}
		parents = []*types.Candidate{a, b}
	default:
		a, err := r.pop.GetOneCandidate(r.rng)
		if err != nil {
			return false, err
		}
		parents = []*types.Candidate{a}
	}

	// Claim the operator/parents combination before doing the work, so
	// cooperating processes never breed the same pair twice
	key := reservationKey(op, parents)
	if err := r.st.Reserve(ctx, key, r.owner); err != nil {
		if errors.Is(err, store.ErrReserved) {
			r.logger.WithField("key", key).Debug("Combination already claimed")
			return false, nil
		}
		return false, err
	}

	child, err := r.makeChild(op, parents)
	if err != nil {
		// Free the combination; a different operator may still work
		// on these parents
		_ = r.st.Release(ctx, key)
		r.bumpOperatorFailure()
		r.logger.WithFields(logrus.Fields{
			"operator": op.Name(),
			"error":    err.Error(),
		}).Debug("Operator produced no child")
		return false, nil
	}

	if err := r.st.AddUnrelaxed(ctx, child); err != nil {
		_ = r.st.Release(ctx, key)
		return false, err
	}

	r.mu.Lock()
	r.stats.OffspringCreated++
	r.mu.Unlock()

	res := r.pool.RelaxOne(ctx, child)
	return true, r.record(ctx, res)
}

// makeChild applies the operator and wraps the result into a candidate
func (r *Runner) makeChild(op operators.Operator, parents []*types.Candidate) (*types.Candidate, error) {
	s, err := op.Apply(r.rng, parents...)
	if err != nil {
		return nil, err
	}

	generation := 0
	ids := make([]string, len(parents))
	for i, p := range parents {
		if p.Generation >= generation {
			generation = p.Generation + 1
		}
		ids[i] = p.ID
	}

	return &types.Candidate{
		ID:         uuid.New().String(),
		Structure:  s,
		Generation: generation,
		State:      types.StateUnrelaxed,
		Origin:     op.Name(),
		ParentIDs:  ids,
	}, nil
}

// topUp adds one fresh random candidate and relaxes it. Used when dedup
// or failures leave the population too small to breed.
func (r *Runner) topUp(ctx context.Context) error {
	cand, err := r.gen.Generate(r.rng)
	if err != nil {
		return err
	}
	if err := r.st.AddUnrelaxed(ctx, cand); err != nil {
		return err
	}
	res := r.pool.RelaxOne(ctx, cand)
	return r.record(ctx, res)
}

// record writes a relaxation result back to the store and updates stats
func (r *Runner) record(ctx context.Context, res *types.RelaxResult) error {
	r.mu.Lock()
	r.stats.TotalRelaxations++
	relaxCount := r.stats.TotalRelaxations
	r.mu.Unlock()

	if !res.Success {
		r.mu.Lock()
		r.stats.FailedRelaxations++
		r.mu.Unlock()
		return r.st.MarkFailed(ctx, res.ID)
	}

	if res.RawScore == nil {
		return fmt.Errorf("relax result for %s carries no raw score", res.ID)
	}
	score := *res.RawScore

	if err := r.st.MarkRelaxed(ctx, res.ID, res.Positions, score); err != nil {
		return err
	}

	r.mu.Lock()
	if score > r.stats.BestScore || r.stats.BestID == "" {
		r.stats.BestScore = score
		r.stats.BestID = res.ID
		r.lastImprovement = relaxCount
		r.logger.WithFields(logrus.Fields{
			"candidate": shortID(res.ID),
			"raw_score": score,
		}).Info("New best candidate")
	}
	r.stats.LastUpdate = time.Now()
	r.mu.Unlock()

	return nil
}

func (r *Runner) stagnated(stats types.RunStats) bool {
	if r.cfg.Run.StagnationWindow <= 0 {
		return false
	}
	r.mu.RLock()
	last := r.lastImprovement
	r.mu.RUnlock()
	return stats.TotalRelaxations-last >= int64(r.cfg.Run.StagnationWindow)
}

func (r *Runner) bumpOperatorFailure() {
	r.mu.Lock()
	r.stats.OperatorFailures++
	r.mu.Unlock()
}

func reservationKey(op operators.Operator, parents []*types.Candidate) string {
	ids := make([]string, len(parents))
	for i, p := range parents {
		ids[i] = p.ID
	}
	return op.Name() + ":" + strings.Join(ids, ":")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
