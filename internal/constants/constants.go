// Package constants provides named constants used throughout bucketsim.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Simulation defaults.
const (
	// DefaultMembers is the size of the synthetic population.
	DefaultMembers = 10000

	// DefaultPartitions is the number of weighted sub-populations.
	DefaultPartitions = 4

	// DefaultRounds is the number of experiments simulated per run.
	DefaultRounds = 100

	// DefaultLabelLength is the length of generated experiment labels.
	DefaultLabelLength = 8
)

// Validation defaults.
const (
	// DefaultAlpha is the significance level for both fairness tests.
	DefaultAlpha = 0.05
)

// Storage layout.
const (
	// DataDirName is the per-project data directory.
	DataDirName = ".bucketsim"

	// ResultsDBName is the SQLite results database inside the data directory.
	ResultsDBName = "results.db"

	// ConfigFileName is the YAML config file inside the user's data directory.
	ConfigFileName = "config.yaml"
)

// Environment variable prefix for configuration overrides.
const EnvPrefix = "BUCKETSIM_"
