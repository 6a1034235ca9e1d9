package types

import (
	"time"
)

// Structure represents an atomic structure: species, Cartesian positions
// and an optional periodic cell
type Structure struct {
	Numbers   []int      `json:"numbers"`
	Positions []float64  `json:"positions"` // flat, row-major n x 3
	Cell      [9]float64 `json:"cell,omitempty"`
	PBC       [3]bool    `json:"pbc,omitempty"`
}

// NAtoms returns the number of atoms in the structure
func (s *Structure) NAtoms() int {
	return len(s.Numbers)
}

// Copy returns a deep copy of the structure
func (s *Structure) Copy() *Structure {
	c := &Structure{
		Numbers:   make([]int, len(s.Numbers)),
		Positions: make([]float64, len(s.Positions)),
		Cell:      s.Cell,
		PBC:       s.PBC,
	}
	copy(c.Numbers, s.Numbers)
	copy(c.Positions, s.Positions)
	return c
}

// RelaxationState tracks whether a candidate has been locally optimized
type RelaxationState string

const (
	StateUnrelaxed RelaxationState = "unrelaxed"
	StateRelaxed   RelaxationState = "relaxed"
	StateFailed    RelaxationState = "failed"
)

// Candidate represents a structure being evolved
type Candidate struct {
	ID         string          `json:"id"`
	Structure  *Structure      `json:"structure"`
	Generation int             `json:"generation"`
	State      RelaxationState `json:"state"`
	RawScore   float64         `json:"raw_score"`
	Origin     string          `json:"origin"`
	ParentIDs  []string        `json:"parent_ids,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Relaxed reports whether the candidate has a defined raw score.
// Unrelaxed candidates are never compared or ranked.
func (c *Candidate) Relaxed() bool {
	return c.State == StateRelaxed
}

// RelaxResult represents the outcome of relaxing a candidate through
// the external evaluation collaborator. RawScore is optional; when the
// collaborator leaves it nil the pool fills in the negated energy, so an
// explicit score of zero is preserved.
type RelaxResult struct {
	ID        string        `json:"id"`
	Positions []float64     `json:"positions,omitempty"`
	Energy    float64       `json:"energy"`
	RawScore  *float64      `json:"raw_score,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// RunMeta describes the search a store belongs to. It is persisted so a
// restarted process can verify it resumes the same search.
type RunMeta struct {
	Stoichiometry []int      `json:"stoichiometry"`
	Cell          [9]float64 `json:"cell"`
	CreatedAt     time.Time  `json:"created_at"`
}

// RunStats tracks statistics about the evolution run
type RunStats struct {
	TotalRelaxations  int64     `json:"total_relaxations"`
	FailedRelaxations int64     `json:"failed_relaxations"`
	OffspringCreated  int64     `json:"offspring_created"`
	OperatorFailures  int64     `json:"operator_failures"`
	BestScore         float64   `json:"best_score"`
	BestID            string    `json:"best_id"`
	StartTime         time.Time `json:"start_time"`
	LastUpdate        time.Time `json:"last_update"`
}

// Config represents the main configuration
type Config struct {
	Store      StoreConfig      `yaml:"store" json:"store"`
	Population PopulationConfig `yaml:"population" json:"population"`
	Operators  OperatorsConfig  `yaml:"operators" json:"operators"`
	StartGen   StartGenConfig   `yaml:"start_generator" json:"start_generator"`
	Relax      RelaxConfig      `yaml:"relax" json:"relax"`
	Run        RunConfig        `yaml:"run" json:"run"`
}

// StoreConfig represents candidate store configuration
type StoreConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// PopulationConfig represents population tracker configuration
type PopulationConfig struct {
	Size        int     `yaml:"size" json:"size"`
	ScoreDelta  float64 `yaml:"score_delta" json:"score_delta"`
	PairCumDiff float64 `yaml:"pair_cum_diff" json:"pair_cum_diff"`
	PairMaxDiff float64 `yaml:"pair_max_diff" json:"pair_max_diff"`
	UseDamping  float64 `yaml:"use_damping" json:"use_damping"`
}

// OperatorsConfig represents variation operator configuration
type OperatorsConfig struct {
	PairingWeight     float64 `yaml:"pairing_weight" json:"pairing_weight"`
	RattleWeight      float64 `yaml:"rattle_weight" json:"rattle_weight"`
	MirrorWeight      float64 `yaml:"mirror_weight" json:"mirror_weight"`
	PermutationWeight float64 `yaml:"permutation_weight" json:"permutation_weight"`
	RattleStrength    float64 `yaml:"rattle_strength" json:"rattle_strength"`
	RattleFraction    float64 `yaml:"rattle_fraction" json:"rattle_fraction"`
	MinDistFactor     float64 `yaml:"min_dist_factor" json:"min_dist_factor"`
	MaxAttempts       int     `yaml:"max_attempts" json:"max_attempts"`
}

// StartGenConfig represents random start generator configuration
type StartGenConfig struct {
	InitialSize int        `yaml:"initial_size" json:"initial_size"`
	Box         [9]float64 `yaml:"box" json:"box"`
	BoxOrigin   [3]float64 `yaml:"box_origin" json:"box_origin"`
	MaxAttempts int        `yaml:"max_attempts" json:"max_attempts"`
}

// RelaxConfig represents relaxation worker configuration
type RelaxConfig struct {
	Workers int `yaml:"workers" json:"workers"`
	Timeout int `yaml:"timeout" json:"timeout"` // seconds per candidate
}

// RunConfig represents run loop configuration
type RunConfig struct {
	MaxRelaxations   int      `yaml:"max_relaxations" json:"max_relaxations"`
	TargetScore      *float64 `yaml:"target_score" json:"target_score"`
	StagnationWindow int      `yaml:"stagnation_window" json:"stagnation_window"`
	Seed             int64    `yaml:"seed" json:"seed"`
	Verbose          bool     `yaml:"verbose" json:"verbose"`
}
