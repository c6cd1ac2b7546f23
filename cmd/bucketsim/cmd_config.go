package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nvandessel/bucketsim/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configKeys lists the settable keys in display order.
var configKeys = []string{
	"simulation.members",
	"simulation.partitions",
	"simulation.skewed",
	"simulation.rounds",
	"simulation.seed",
	"simulation.workers",
	"simulation.label_length",
	"simulation.record_history",
	"validation.alpha",
	"hash.algorithm",
	"logging.level",
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bucketsim configuration",
		Long: `View and modify bucketsim configuration settings.

Configuration is stored in ~/.bucketsim/config.yaml, or in the file named by
--config. BUCKETSIM_* environment variables override the file.

Examples:
  bucketsim config list                          # Show effective settings
  bucketsim config get simulation.members        # Get a specific setting
  bucketsim config set hash.algorithm sha256     # Set a setting`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration:")
			fmt.Fprintln(out)
			for _, key := range configKeys {
				value, _ := getConfigValue(cfg, key)
				fmt.Fprintf(out, "  %-26s %v\n", key+":", displayValue(key, value))
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, displayValue(key, value))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			path, err := configFilePath(cmd)
			if err != nil {
				return err
			}

			// Edit the file as stored; environment overrides are not persisted.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				cfg, err = config.LoadFromFile(path)
				if err != nil {
					return err
				}
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := saveConfig(path, cfg); err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
					"path":   path,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// configFilePath returns --config, or ~/.bucketsim/config.yaml.
func configFilePath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	path, err := config.UserConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return path, nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (interface{}, bool) {
	switch key {
	case "simulation.members":
		return cfg.Simulation.Members, true
	case "simulation.partitions":
		return cfg.Simulation.Partitions, true
	case "simulation.skewed":
		return cfg.Simulation.Skewed, true
	case "simulation.rounds":
		return cfg.Simulation.Rounds, true
	case "simulation.seed":
		return cfg.Simulation.Seed, true
	case "simulation.workers":
		return cfg.Simulation.Workers, true
	case "simulation.label_length":
		return cfg.Simulation.LabelLength, true
	case "simulation.record_history":
		return cfg.Simulation.RecordHistory, true
	case "validation.alpha":
		return cfg.Validation.Alpha, true
	case "hash.algorithm":
		return cfg.Hash.Algorithm, true
	case "logging.level":
		return cfg.Logging.Level, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key. Range
// checks are left to Config.Validate.
func setConfigValue(cfg *config.Config, key, value string) error {
	parseInt := func(dst *int) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %q is not an integer", key, value)
		}
		*dst = n
		return nil
	}
	parseBool := func(dst *bool) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %q is not a boolean", key, value)
		}
		*dst = b
		return nil
	}

	switch key {
	case "simulation.members":
		return parseInt(&cfg.Simulation.Members)
	case "simulation.partitions":
		return parseInt(&cfg.Simulation.Partitions)
	case "simulation.skewed":
		return parseBool(&cfg.Simulation.Skewed)
	case "simulation.rounds":
		return parseInt(&cfg.Simulation.Rounds)
	case "simulation.seed":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %q is not an unsigned integer", key, value)
		}
		cfg.Simulation.Seed = n
	case "simulation.workers":
		return parseInt(&cfg.Simulation.Workers)
	case "simulation.label_length":
		return parseInt(&cfg.Simulation.LabelLength)
	case "simulation.record_history":
		return parseBool(&cfg.Simulation.RecordHistory)
	case "validation.alpha":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %q is not a number", key, value)
		}
		cfg.Validation.Alpha = f
	case "hash.algorithm":
		cfg.Hash.Algorithm = value
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// saveConfig writes cfg as YAML to path.
func saveConfig(path string, cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// displayValue renders zero values that mean "pick at run time".
func displayValue(key string, value interface{}) interface{} {
	switch key {
	case "simulation.seed":
		if value == uint64(0) {
			return "(random)"
		}
	case "simulation.workers":
		if value == 0 {
			return "(GOMAXPROCS)"
		}
	case "hash.algorithm", "logging.level":
		if value == "" {
			return "(default)"
		}
	}
	return value
}
