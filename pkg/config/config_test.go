package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomevolve/atomevolve-go/internal/constants"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ATOMEVOLVE_DB", "ATOMEVOLVE_BACKEND", "ATOMEVOLVE_POPULATION",
		"ATOMEVOLVE_MAX_RELAXATIONS", "ATOMEVOLVE_SEED", "ATOMEVOLVE_VERBOSE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestNewManager(t *testing.T) {
	manager := NewManager()
	assert.NotNil(t, manager)
	assert.NotNil(t, manager.config)
	assert.Empty(t, manager.path)
}

func TestDefaults(t *testing.T) {
	cfg := NewManager().GetConfig()
	assert.Equal(t, constants.DefaultStoreBackend, cfg.Store.Backend)
	assert.Equal(t, constants.DefaultPopulationSize, cfg.Population.Size)
	assert.Equal(t, constants.DefaultMinDistFactor, cfg.Operators.MinDistFactor)
	assert.Equal(t, constants.DefaultMaxRelaxations, cfg.Run.MaxRelaxations)
}

func TestLoadAndSave(t *testing.T) {
	clearEnv(t)

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	// Save default config, then load it back
	require.NoError(t, CreateDefaultConfig(configPath))

	manager := NewManager()
	require.NoError(t, manager.Load(configPath))
	assert.Equal(t, configPath, manager.GetPath())
	assert.Equal(t, constants.DefaultPopulationSize, manager.GetConfig().Population.Size)
}

func TestLoadOverridesDefaults(t *testing.T) {
	clearEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
population:
  size: 7
run:
  max_relaxations: 50
  seed: 9
`)
	require.NoError(t, os.WriteFile(configPath, data, 0644))

	manager := NewManager()
	require.NoError(t, manager.Load(configPath))

	cfg := manager.GetConfig()
	assert.Equal(t, 7, cfg.Population.Size)
	assert.Equal(t, 50, cfg.Run.MaxRelaxations)
	assert.Equal(t, int64(9), cfg.Run.Seed)
	// Untouched sections keep their defaults
	assert.Equal(t, constants.DefaultPairingWeight, cfg.Operators.PairingWeight)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATOMEVOLVE_DB", "/tmp/other.sqlite")
	t.Setenv("ATOMEVOLVE_POPULATION", "11")
	t.Setenv("ATOMEVOLVE_VERBOSE", "true")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, CreateDefaultConfig(configPath))

	manager := NewManager()
	require.NoError(t, manager.Load(configPath))

	cfg := manager.GetConfig()
	assert.Equal(t, "/tmp/other.sqlite", cfg.Store.Path)
	assert.Equal(t, 11, cfg.Population.Size)
	assert.True(t, cfg.Run.Verbose)
}

func TestValidationFailures(t *testing.T) {
	clearEnv(t)

	cases := map[string]string{
		"zero population": `
population:
  size: 0
`,
		"bad backend": `
store:
  backend: postgres
`,
		"bad min dist factor": `
operators:
  min_dist_factor: 1.5
`,
		"initial smaller than population": `
population:
  size: 20
start_generator:
  initial_size: 5
`,
		"no operator weights": `
operators:
  pairing_weight: 0
  rattle_weight: 0
  mirror_weight: 0
  permutation_weight: 0
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

			manager := NewManager()
			err := manager.Load(configPath)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	manager := NewManager()
	assert.Error(t, manager.Load(filepath.Join(t.TempDir(), "nope.yaml")))
}
