package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/atomevolve/atomevolve-go/internal/constants"
	"github.com/atomevolve/atomevolve-go/internal/types"
)

// Manager handles configuration loading and validation
type Manager struct {
	config *types.Config
	path   string
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		config: getDefaultConfig(),
	}
}

// Load loads configuration from a file
func (m *Manager) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	config := getDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	if err := m.applyEnvOverrides(config); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// Validate configuration
	if err := m.validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	m.config = config
	m.path = path
	return nil
}

// Save saves configuration to a file
func (m *Manager) Save(path string) error {
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *types.Config {
	return m.config
}

// SetConfig updates the configuration
func (m *Manager) SetConfig(config *types.Config) {
	m.config = config
}

// GetPath returns the configuration file path
func (m *Manager) GetPath() string {
	return m.path
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (m *Manager) applyEnvOverrides(config *types.Config) error {
	if path := os.Getenv("ATOMEVOLVE_DB"); path != "" {
		config.Store.Path = path
	}
	if backend := os.Getenv("ATOMEVOLVE_BACKEND"); backend != "" {
		config.Store.Backend = backend
	}
	if size := os.Getenv("ATOMEVOLVE_POPULATION"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("invalid ATOMEVOLVE_POPULATION: %w", err)
		}
		config.Population.Size = n
	}
	if maxRelax := os.Getenv("ATOMEVOLVE_MAX_RELAXATIONS"); maxRelax != "" {
		n, err := strconv.Atoi(maxRelax)
		if err != nil {
			return fmt.Errorf("invalid ATOMEVOLVE_MAX_RELAXATIONS: %w", err)
		}
		config.Run.MaxRelaxations = n
	}
	if seed := os.Getenv("ATOMEVOLVE_SEED"); seed != "" {
		n, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ATOMEVOLVE_SEED: %w", err)
		}
		config.Run.Seed = n
	}
	if verbose := os.Getenv("ATOMEVOLVE_VERBOSE"); verbose != "" {
		config.Run.Verbose = strings.ToLower(verbose) == "true"
	}

	return nil
}

// validate validates the configuration
func (m *Manager) validate(config *types.Config) error {
	// Validate store configuration
	switch config.Store.Backend {
	case constants.BackendSQLite:
		if config.Store.Path == "" {
			return fmt.Errorf("store path is required for the sqlite backend")
		}
	case constants.BackendMemory:
	default:
		return fmt.Errorf("unknown store backend: %s", config.Store.Backend)
	}

	// Validate population configuration
	if config.Population.Size <= 0 {
		return fmt.Errorf("population size must be positive")
	}
	if config.Population.ScoreDelta <= 0 {
		return fmt.Errorf("comparator score delta must be positive")
	}
	if config.Population.PairCumDiff <= 0 || config.Population.PairMaxDiff <= 0 {
		return fmt.Errorf("comparator pair tolerances must be positive")
	}

	// Validate operator configuration
	weights := config.Operators.PairingWeight + config.Operators.RattleWeight +
		config.Operators.MirrorWeight + config.Operators.PermutationWeight
	if weights <= 0 {
		return fmt.Errorf("at least one operator weight must be positive")
	}
	if config.Operators.MinDistFactor <= 0 || config.Operators.MinDistFactor >= 1 {
		return fmt.Errorf("min distance factor must be in (0, 1)")
	}
	if config.Operators.MaxAttempts <= 0 {
		return fmt.Errorf("operator max attempts must be positive")
	}

	// Validate start generator configuration
	if config.StartGen.InitialSize <= 0 {
		return fmt.Errorf("initial size must be positive")
	}
	if config.StartGen.InitialSize < config.Population.Size {
		return fmt.Errorf("initial size must be at least the population size")
	}

	// Validate run configuration
	if config.Run.MaxRelaxations <= 0 {
		return fmt.Errorf("max relaxations must be positive")
	}
	if config.Relax.Workers <= 0 {
		return fmt.Errorf("relax workers must be positive")
	}

	return nil
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *types.Config {
	return &types.Config{
		Store: types.StoreConfig{
			Backend: constants.DefaultStoreBackend,
			Path:    constants.DefaultStorePath,
		},
		Population: types.PopulationConfig{
			Size:        constants.DefaultPopulationSize,
			ScoreDelta:  constants.DefaultScoreDelta,
			PairCumDiff: constants.DefaultPairCumDiff,
			PairMaxDiff: constants.DefaultPairMaxDiff,
			UseDamping:  constants.DefaultUseDamping,
		},
		Operators: types.OperatorsConfig{
			PairingWeight:     constants.DefaultPairingWeight,
			RattleWeight:      constants.DefaultRattleWeight,
			MirrorWeight:      constants.DefaultMirrorWeight,
			PermutationWeight: constants.DefaultPermutationWeight,
			RattleStrength:    constants.DefaultRattleStrength,
			RattleFraction:    constants.DefaultRattleFraction,
			MinDistFactor:     constants.DefaultMinDistFactor,
			MaxAttempts:       constants.DefaultMaxAttempts,
		},
		StartGen: types.StartGenConfig{
			InitialSize: constants.DefaultInitialSize,
			Box:         [9]float64{10, 0, 0, 0, 10, 0, 0, 0, 10},
			MaxAttempts: constants.DefaultMaxAttempts * 10,
		},
		Relax: types.RelaxConfig{
			Workers: constants.DefaultRelaxWorkers,
			Timeout: constants.DefaultRelaxTimeout,
		},
		Run: types.RunConfig{
			MaxRelaxations:   constants.DefaultMaxRelaxations,
			StagnationWindow: constants.DefaultStagnationWindow,
			Seed:             42,
			Verbose:          false,
		},
	}
}

// CreateDefaultConfig creates a default configuration file
func CreateDefaultConfig(path string) error {
	manager := NewManager()
	return manager.Save(path)
}
