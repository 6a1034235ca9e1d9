package constants

// Application constants
const (
	Name        = "AtomEvolve-Go"
	Version     = "1.0.0"
	Description = "Pool-based genetic optimizer for atomic structures with a persistent candidate store"

	// Default configuration values
	DefaultPopulationSize   = 20
	DefaultInitialSize      = 20
	DefaultMaxRelaxations   = 200
	DefaultRelaxWorkers     = 1
	DefaultRelaxTimeout     = 600 // seconds
	DefaultStagnationWindow = 0   // disabled

	// Comparator defaults
	DefaultScoreDelta  = 0.02
	DefaultPairCumDiff = 0.015
	DefaultPairMaxDiff = 0.7

	// Population selection defaults
	DefaultUseDamping = 1.0

	// Operator defaults
	DefaultPairingWeight     = 3.0
	DefaultRattleWeight      = 1.0
	DefaultMirrorWeight      = 1.0
	DefaultPermutationWeight = 1.0
	DefaultRattleStrength    = 0.8
	DefaultRattleFraction    = 0.4
	DefaultMinDistFactor     = 0.7
	DefaultMaxAttempts       = 100

	// Store defaults
	DefaultStoreBackend = "sqlite"
	DefaultStorePath    = "gadb.sqlite"

	// File names
	DefaultConfigFile = "atomevolve.yaml"

	// Exit codes
	ExitSuccess   = 0
	ExitError     = 1
	ExitInterrupt = 2
)

// Candidate origins
const (
	OriginStartGenerator = "start_generator"
	OriginPairing        = "pairing"
	OriginRattle         = "rattle"
	OriginMirror         = "mirror"
	OriginPermutation    = "permutation"
)

// Store backends
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)
