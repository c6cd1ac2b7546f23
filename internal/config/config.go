// Package config provides unified configuration loading for bucketsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/nvandessel/bucketsim/internal/assign"
	"github.com/nvandessel/bucketsim/internal/constants"
	"github.com/nvandessel/bucketsim/internal/models"
	"gopkg.in/yaml.v3"
)

// Config contains all bucketsim configuration settings.
type Config struct {
	// Simulation contains population and round settings.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Validation contains settings for the fairness tests.
	Validation ValidationConfig `json:"validation" yaml:"validation"`

	// Hash selects the assignment digest.
	Hash HashConfig `json:"hash" yaml:"hash"`

	// Logging contains settings for operational and round logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig describes one simulation run.
type SimulationConfig struct {
	// Members is the population size.
	Members int `json:"members" yaml:"members"`

	// Partitions is the number of weighted sub-populations.
	Partitions int `json:"partitions" yaml:"partitions"`

	// Skewed requests a non-uniform partition distribution. Needs at least
	// two partitions.
	Skewed bool `json:"skewed" yaml:"skewed"`

	// Rounds is the number of experiments to simulate.
	Rounds int `json:"rounds" yaml:"rounds"`

	// Seed makes population and label generation reproducible. 0 picks a
	// random seed at run time.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Workers bounds the goroutines computing assignments per round.
	// 0 uses GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`

	// LabelLength is the length of generated experiment labels.
	LabelLength int `json:"label_length" yaml:"label_length"`

	// RecordHistory keeps every member's per-experiment bucket. Required for
	// snapshot replay; costs members*rounds entries.
	RecordHistory bool `json:"record_history" yaml:"record_history"`
}

// ValidationConfig configures the fairness tests.
type ValidationConfig struct {
	// Alpha is the significance level, in (0, 1).
	Alpha float64 `json:"alpha" yaml:"alpha"`
}

// HashConfig selects the digest used for assignment.
type HashConfig struct {
	// Algorithm is "md5" (default) or "sha256".
	Algorithm string `json:"algorithm" yaml:"algorithm"`
}

// LoggingConfig configures bucketsim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables round tracing to <data dir>/rounds.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Members:       constants.DefaultMembers,
			Partitions:    constants.DefaultPartitions,
			Rounds:        constants.DefaultRounds,
			LabelLength:   constants.DefaultLabelLength,
			RecordHistory: true,
		},
		Validation: ValidationConfig{
			Alpha: constants.DefaultAlpha,
		},
		Hash: HashConfig{
			Algorithm: string(assign.AlgorithmMD5),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// UserConfigPath returns ~/.bucketsim/config.yaml.
func UserConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, constants.DataDirName, constants.ConfigFileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.bucketsim/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	if configPath, err := UserConfigPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadPath loads configuration from path, or from the default locations when
// path is empty. Environment overrides apply in both cases.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys absent
// from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// EffectiveWorkers resolves Workers, substituting GOMAXPROCS for 0.
func (c *Config) EffectiveWorkers() int {
	if c.Simulation.Workers > 0 {
		return c.Simulation.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Validate checks that the configuration is valid. Every problem found is
// reported in a single *models.ConfigurationError.
func (c *Config) Validate() error {
	var result *multierror.Error
	s := c.Simulation

	if s.Members < 1 {
		result = multierror.Append(result, models.NewConfigurationError("simulation.members", "must be a positive integer, got %d", s.Members))
	}
	if s.Partitions < 1 {
		result = multierror.Append(result, models.NewConfigurationError("simulation.partitions", "must be a positive integer, got %d", s.Partitions))
	} else if s.Skewed && s.Partitions < 2 {
		result = multierror.Append(result, models.NewConfigurationError("simulation.partitions", "skewed weights need at least 2 partitions, got %d", s.Partitions))
	}
	if s.Rounds < 1 {
		result = multierror.Append(result, models.NewConfigurationError("simulation.rounds", "must be a positive integer, got %d", s.Rounds))
	}
	if s.Workers < 0 {
		result = multierror.Append(result, models.NewConfigurationError("simulation.workers", "must be non-negative, got %d", s.Workers))
	}
	if s.LabelLength < 1 {
		result = multierror.Append(result, models.NewConfigurationError("simulation.label_length", "must be a positive integer, got %d", s.LabelLength))
	} else if s.Rounds >= 1 && float64(s.Rounds) > assign.LabelSpace(s.LabelLength)/2 {
		// Past half the label space regeneration starts exhausting its attempts.
		result = multierror.Append(result, models.NewConfigurationError("simulation.rounds",
			"%d rounds exceed half of the %g distinct labels of length %d", s.Rounds, assign.LabelSpace(s.LabelLength), s.LabelLength))
	}

	if a := c.Validation.Alpha; !(a > 0 && a < 1) {
		result = multierror.Append(result, models.NewConfigurationError("validation.alpha", "must be in (0, 1), got %g", a))
	}

	if c.Hash.Algorithm != "" && !assign.Algorithm(c.Hash.Algorithm).Valid() {
		result = multierror.Append(result, models.NewConfigurationError("hash.algorithm", "invalid algorithm %q (valid: %s)", c.Hash.Algorithm, assign.AlgorithmNames()))
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		result = multierror.Append(result, models.NewConfigurationError("logging.level", "invalid level %q (valid: info, debug, trace, or empty for default)", c.Logging.Level))
	}

	if err := result.ErrorOrNil(); err != nil {
		if len(result.Errors) == 1 {
			return result.Errors[0]
		}
		return &models.ConfigurationError{Reason: err.Error(), Err: err}
	}
	return nil
}

// applyEnvOverrides applies BUCKETSIM_* environment variable overrides.
func applyEnvOverrides(config *Config) {
	envInt := func(key string, dst *int) {
		if v := os.Getenv(constants.EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(constants.EnvPrefix + key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	envInt("MEMBERS", &config.Simulation.Members)
	envInt("PARTITIONS", &config.Simulation.Partitions)
	envInt("ROUNDS", &config.Simulation.Rounds)
	envInt("WORKERS", &config.Simulation.Workers)
	envInt("LABEL_LENGTH", &config.Simulation.LabelLength)
	envBool("SKEWED", &config.Simulation.Skewed)
	envBool("RECORD_HISTORY", &config.Simulation.RecordHistory)

	if v := os.Getenv(constants.EnvPrefix + "SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}

	if v := os.Getenv(constants.EnvPrefix + "ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Validation.Alpha = f
		}
	}

	if v := os.Getenv(constants.EnvPrefix + "HASH"); v != "" {
		config.Hash.Algorithm = v
	}

	if v := os.Getenv(constants.EnvPrefix + "LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
