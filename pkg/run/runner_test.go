package run

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomevolve/atomevolve-go/internal/constants"
	"github.com/atomevolve/atomevolve-go/internal/types"
	"github.com/atomevolve/atomevolve-go/pkg/evaluator"
	"github.com/atomevolve/atomevolve-go/pkg/store"
)

func testConfig() *types.Config {
	return &types.Config{
		Store: types.StoreConfig{Backend: constants.BackendMemory},
		Population: types.PopulationConfig{
			Size:        4,
			ScoreDelta:  0.02,
			PairCumDiff: 0.015,
			PairMaxDiff: 0.7,
			UseDamping:  1.0,
		},
		Operators: types.OperatorsConfig{
			PairingWeight:     3.0,
			RattleWeight:      1.0,
			MirrorWeight:      1.0,
			PermutationWeight: 1.0,
			RattleStrength:    0.8,
			RattleFraction:    0.4,
			MinDistFactor:     0.7,
			MaxAttempts:       50,
		},
		StartGen: types.StartGenConfig{
			InitialSize: 6,
			Box:         [9]float64{8, 0, 0, 0, 8, 0, 0, 0, 8},
			MaxAttempts: 500,
		},
		Relax: types.RelaxConfig{Workers: 2, Timeout: 10},
		Run: types.RunConfig{
			MaxRelaxations: 20,
			Seed:           42,
		},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// compactnessRelaxer keeps geometry fixed and scores candidates by how
// tightly the atoms cluster around their centroid
func compactnessRelaxer() evaluator.Relaxer {
	return evaluator.RelaxerFunc(func(_ context.Context, cand *types.Candidate) (*types.RelaxResult, error) {
		n := cand.Structure.NAtoms()
		var cx, cy, cz float64
		for i := 0; i < n; i++ {
			cx += cand.Structure.Positions[3*i]
			cy += cand.Structure.Positions[3*i+1]
			cz += cand.Structure.Positions[3*i+2]
		}
		cx /= float64(n)
		cy /= float64(n)
		cz /= float64(n)

		var energy float64
		for i := 0; i < n; i++ {
			dx := cand.Structure.Positions[3*i] - cx
			dy := cand.Structure.Positions[3*i+1] - cy
			dz := cand.Structure.Positions[3*i+2] - cz
			energy += dx*dx + dy*dy + dz*dz
		}
		return &types.RelaxResult{
			Positions: append([]float64(nil), cand.Structure.Positions...),
			Energy:    energy,
		}, nil
	})
}

func fixedScoreRelaxer(score float64) evaluator.Relaxer {
	return evaluator.RelaxerFunc(func(_ context.Context, cand *types.Candidate) (*types.RelaxResult, error) {
		return &types.RelaxResult{
			Positions: append([]float64(nil), cand.Structure.Positions...),
			Energy:    -score,
			RawScore:  &score,
		}, nil
	})
}

// cluster of two species so every operator is applicable
var testStoichiometry = []int{29, 29, 29, 47, 47, 47}

func TestRunnerFullSearch(t *testing.T) {
	cfg := testConfig()
	st := store.NewMemoryStore()
	defer st.Close()

	r, err := New(cfg, st, compactnessRelaxer(), testStoichiometry, quietLogger())
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))

	stats := r.Stats()
	assert.GreaterOrEqual(t, stats.TotalRelaxations, int64(cfg.Run.MaxRelaxations))
	assert.NotEmpty(t, stats.BestID)

	all, err := st.All(context.Background())
	require.NoError(t, err)
	for _, cand := range all {
		assert.NotEqual(t, types.StateUnrelaxed, cand.State,
			"candidate %s left unrelaxed", cand.ID)
	}

	best := r.Population().Best()
	require.NotNil(t, best)
	assert.Equal(t, stats.BestScore, best.RawScore)
}

func TestRunnerOffspringRecordLineage(t *testing.T) {
	cfg := testConfig()
	cfg.Run.MaxRelaxations = 30
	st := store.NewMemoryStore()
	defer st.Close()

	r, err := New(cfg, st, compactnessRelaxer(), testStoichiometry, quietLogger())
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	all, err := st.All(context.Background())
	require.NoError(t, err)

	offspring := 0
	for _, cand := range all {
		if cand.Origin == constants.OriginStartGenerator {
			assert.Empty(t, cand.ParentIDs)
			continue
		}
		offspring++
		assert.NotEmpty(t, cand.ParentIDs)
		assert.Greater(t, cand.Generation, 0)
		for _, pid := range cand.ParentIDs {
			_, ok, err := st.Get(context.Background(), pid)
			assert.NoError(t, err)
			assert.True(t, ok, "parent %s missing from store", pid)
		}
	}
	assert.Greater(t, offspring, 0)
}

func TestRunnerResumesExistingStore(t *testing.T) {
	cfg := testConfig()
	cfg.Run.MaxRelaxations = 8
	st := store.NewMemoryStore()
	defer st.Close()

	r1, err := New(cfg, st, compactnessRelaxer(), testStoichiometry, quietLogger())
	require.NoError(t, err)
	require.NoError(t, r1.Run(context.Background()))

	before, err := st.All(context.Background())
	require.NoError(t, err)

	cfg2 := testConfig()
	cfg2.Run.MaxRelaxations = 5
	r2, err := New(cfg2, st, compactnessRelaxer(), testStoichiometry, quietLogger())
	require.NoError(t, err)
	require.NoError(t, r2.Run(context.Background()))

	after, err := st.All(context.Background())
	require.NoError(t, err)
	assert.Greater(t, len(after), len(before))

	// the second runner must not re-seed slots the first already claimed
	seeds := 0
	for _, cand := range after {
		if len(cand.ParentIDs) == 0 && cand.Origin == constants.OriginStartGenerator {
			seeds++
		}
	}
	assert.LessOrEqual(t, seeds, len(after))
	meta, ok, err := st.GetMeta(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testStoichiometry, meta.Stoichiometry)
}

func TestRunnerRejectsForeignStore(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	require.NoError(t, st.Init(context.Background()))
	require.NoError(t, st.SaveMeta(context.Background(), types.RunMeta{
		Stoichiometry: []int{79, 79},
	}))

	r, err := New(testConfig(), st, compactnessRelaxer(), testStoichiometry, quietLogger())
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrMetaMismatch)
}

func TestRunnerStopsAtTargetScore(t *testing.T) {
	cfg := testConfig()
	cfg.Run.MaxRelaxations = 1000
	target := 10.0
	cfg.Run.TargetScore = &target
	st := store.NewMemoryStore()
	defer st.Close()

	r, err := New(cfg, st, fixedScoreRelaxer(42.0), testStoichiometry, quietLogger())
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	stats := r.Stats()
	// seeds alone clear the bar; no breeding should happen
	assert.Equal(t, int64(cfg.StartGen.InitialSize), stats.TotalRelaxations)
	assert.Equal(t, 42.0, stats.BestScore)
}

func TestRunnerResumeStopsAtPersistedTarget(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	// First run fills the store with candidates scoring well above the
	// target the second run will ask for
	cfg1 := testConfig()
	cfg1.Run.MaxRelaxations = 6
	r1, err := New(cfg1, st, fixedScoreRelaxer(42.0), testStoichiometry, quietLogger())
	require.NoError(t, err)
	require.NoError(t, r1.Run(context.Background()))

	cfg2 := testConfig()
	cfg2.Run.MaxRelaxations = 1000
	target := 10.0
	cfg2.Run.TargetScore = &target
	r2, err := New(cfg2, st, fixedScoreRelaxer(42.0), testStoichiometry, quietLogger())
	require.NoError(t, err)
	require.NoError(t, r2.Run(context.Background()))

	// The persisted best already satisfies the target; the resume must
	// not breed at all
	stats := r2.Stats()
	assert.Equal(t, int64(0), stats.TotalRelaxations)
	assert.Equal(t, 42.0, stats.BestScore)
	assert.NotEmpty(t, stats.BestID)
}

func TestRunnerStopsOnStagnation(t *testing.T) {
	cfg := testConfig()
	cfg.Run.MaxRelaxations = 1000
	cfg.Run.StagnationWindow = 5
	st := store.NewMemoryStore()
	defer st.Close()

	r, err := New(cfg, st, fixedScoreRelaxer(-3.0), testStoichiometry, quietLogger())
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	stats := r.Stats()
	assert.Less(t, stats.TotalRelaxations, int64(100),
		"constant scores must trip the stagnation window quickly")
}

func TestRunnerSurvivesFailingRelaxer(t *testing.T) {
	cfg := testConfig()
	cfg.Run.MaxRelaxations = 10
	st := store.NewMemoryStore()
	defer st.Close()

	failing := evaluator.RelaxerFunc(func(_ context.Context, _ *types.Candidate) (*types.RelaxResult, error) {
		return nil, errors.New("scf did not converge")
	})

	r, err := New(cfg, st, failing, testStoichiometry, quietLogger())
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	stats := r.Stats()
	assert.Equal(t, stats.TotalRelaxations, stats.FailedRelaxations)
	assert.Nil(t, r.Population().Best())

	all, err := st.All(context.Background())
	require.NoError(t, err)
	for _, cand := range all {
		assert.Equal(t, types.StateFailed, cand.State)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	cfg := testConfig()
	st := store.NewMemoryStore()
	defer st.Close()
	relaxer := compactnessRelaxer()

	_, err := New(nil, st, relaxer, testStoichiometry, nil)
	assert.Error(t, err)

	_, err = New(cfg, nil, relaxer, testStoichiometry, nil)
	assert.Error(t, err)

	_, err = New(cfg, st, nil, testStoichiometry, nil)
	assert.Error(t, err)

	_, err = New(cfg, st, relaxer, nil, nil)
	assert.Error(t, err)
}
