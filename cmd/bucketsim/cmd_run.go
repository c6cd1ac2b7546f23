package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/nvandessel/bucketsim/internal/assign"
	"github.com/nvandessel/bucketsim/internal/config"
	"github.com/nvandessel/bucketsim/internal/export"
	"github.com/nvandessel/bucketsim/internal/logging"
	"github.com/nvandessel/bucketsim/internal/simulation"
	"github.com/nvandessel/bucketsim/internal/store"
	"github.com/spf13/cobra"
)

// runResult is the --json output of the run command.
type runResult struct {
	Run          store.RunRecord `json:"run"`
	Passed       bool            `json:"passed"`
	Saved        bool            `json:"saved"`
	CSV          string          `json:"csv,omitempty"`
	PartitionCSV string          `json:"partition_csv,omitempty"`
	Snapshot     string          `json:"snapshot,omitempty"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a population across experiments and test the hash",
		Long: `Generate a weighted population, assign every member to control or
treatment in a series of randomly named experiments, and test the results.

Flags override the config file and BUCKETSIM_* environment variables.

Examples:
  bucketsim run --members 1000 --partitions 2 --rounds 1
  bucketsim run --members 100000 --partitions 4 --skewed --rounds 200 --save
  bucketsim run --seed 42 --csv members.csv --snapshot run.json.gz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")
			save, _ := cmd.Flags().GetBool("save")
			csvPath, _ := cmd.Flags().GetString("csv")
			partitionCSVPath, _ := cmd.Flags().GetString("partition-csv")
			snapshotPath, _ := cmd.Flags().GetString("snapshot")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cmd, cfg)
			roundLog := logging.NewRoundLogger(store.DataDir(root), cfg.Logging.Level)
			defer roundLog.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigChan := make(chan os.Signal, 1)
			notifySignals(sigChan)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					logger.Info("interrupted, stopping after the current round")
					cancel()
				case <-ctx.Done():
				}
			}()

			run, err := simulation.Execute(ctx, cfg, simulation.Environment{Logger: logger, Rounds: roundLog})
			if err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}

			rec, err := store.NewRunRecord(run)
			if err != nil {
				return err
			}
			result := runResult{Run: rec, Passed: rec.Passed()}
			result.Run.Experiments = nil

			if save {
				if err := saveRun(ctx, root, run); err != nil {
					return err
				}
				result.Saved = true
			}
			if csvPath != "" {
				if err := writeCSVFile(csvPath, func(w io.Writer) (int, error) {
					return export.WriteMemberCSV(w, run.Report.Members, export.DefaultCSVConfig())
				}); err != nil {
					return err
				}
				result.CSV = csvPath
			}
			if partitionCSVPath != "" {
				if err := writeCSVFile(partitionCSVPath, func(w io.Writer) (int, error) {
					return export.WritePartitionCSV(w, run.Report.Partitions, export.DefaultCSVConfig())
				}); err != nil {
					return err
				}
				result.PartitionCSV = partitionCSVPath
			}
			if snapshotPath != "" {
				path, err := writeSnapshot(snapshotPath, run)
				if err != nil {
					return err
				}
				result.Snapshot = path
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			printRunRecord(cmd.OutOrStdout(), &result.Run)
			if result.Saved {
				fmt.Fprintf(cmd.OutOrStdout(), "\nSaved to %s\n", store.ResultsPath(root))
			}
			for _, path := range []string{result.CSV, result.PartitionCSV, result.Snapshot} {
				if path != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("members", 0, "Population size")
	cmd.Flags().Int("partitions", 0, "Number of weighted partitions")
	cmd.Flags().Bool("skewed", false, "Skew the partition weights (needs at least 2 partitions)")
	cmd.Flags().Int("rounds", 0, "Number of experiments to simulate")
	cmd.Flags().Uint64("seed", 0, "Seed for population and label generation (0 = random)")
	cmd.Flags().Int("workers", 0, "Goroutines per round (0 = GOMAXPROCS)")
	cmd.Flags().Float64("alpha", 0, "Significance level for the fairness tests")
	cmd.Flags().String("hash", "", "Assignment digest: "+assign.AlgorithmNames())
	cmd.Flags().Bool("no-history", false, "Keep cohort counters only, not per-experiment buckets")
	cmd.Flags().Bool("save", false, "Store the run in the results database")
	cmd.Flags().String("csv", "", "Write per-member results to this CSV file")
	cmd.Flags().String("partition-csv", "", "Write per-partition results to this CSV file")
	cmd.Flags().String("snapshot", "", "Write a replayable snapshot to this file, or into this directory")

	return cmd
}

// applyRunFlags overlays the flags the user set onto cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error
	setInt := func(name string, dst *int) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetInt(name)
		}
	}
	setInt("members", &cfg.Simulation.Members)
	setInt("partitions", &cfg.Simulation.Partitions)
	setInt("rounds", &cfg.Simulation.Rounds)
	setInt("workers", &cfg.Simulation.Workers)
	if err != nil {
		return err
	}

	if flags.Changed("skewed") {
		cfg.Simulation.Skewed, _ = flags.GetBool("skewed")
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("alpha") {
		cfg.Validation.Alpha, _ = flags.GetFloat64("alpha")
	}
	if flags.Changed("hash") {
		cfg.Hash.Algorithm, _ = flags.GetString("hash")
	}
	if noHistory, _ := flags.GetBool("no-history"); noHistory {
		cfg.Simulation.RecordHistory = false
	}
	return nil
}

func saveRun(ctx context.Context, root string, run *simulation.Run) error {
	s, err := store.NewSQLiteResultStore(root)
	if err != nil {
		return fmt.Errorf("failed to open results store: %w", err)
	}
	defer s.Close()
	if err := s.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func writeCSVFile(path string, write func(io.Writer) (int, error)) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// writeSnapshot writes run to path. An existing directory gets a
// generated file name.
func writeSnapshot(path string, run *simulation.Run) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = export.DefaultSnapshotPath(path, run.ID, run.CreatedAt)
	}
	snap, err := export.NewSnapshot(run)
	if err != nil {
		return "", err
	}
	if _, err := export.WriteSnapshot(path, snap); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

// printRunRecord writes the human-readable form of rec.
func printRunRecord(w io.Writer, rec *store.RunRecord) {
	shape := "uniform"
	if rec.Skewed {
		shape = "skewed"
	}
	fmt.Fprintf(w, "Run %s\n", rec.ID)
	fmt.Fprintf(w, "  created:    %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "  members:    %d in %d %s partitions\n", rec.Members, rec.Partitions, shape)
	fmt.Fprintf(w, "  rounds:     %d\n", rec.Rounds)
	fmt.Fprintf(w, "  seed:       %d\n", rec.Seed)
	fmt.Fprintf(w, "  hash:       %s\n", rec.Algorithm)
	if rec.LabelCollisions > 0 {
		fmt.Fprintf(w, "  label collisions: %d\n", rec.LabelCollisions)
	}
	if rec.Duration > 0 {
		fmt.Fprintf(w, "  elapsed:    %v\n", rec.Duration)
	}

	if len(rec.Weights) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Partitions:")
		for _, p := range rec.Weights {
			fmt.Fprintf(w, "  %-4s weight %.4f  members %d\n", p.Label, p.Weight, p.Members)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Independence: %s  (t = %s, p = %s, member rejection rate %.4f)\n",
		verdict(rec.Independent), formatStat(rec.TStatistic), formatStat(rec.TPValue), rec.MemberRejectionRate)
	fmt.Fprintf(w, "Uniformity:   %s  (partition rejection rate %.4f at alpha %g)\n",
		verdict(rec.Uniform), rec.PartitionRejectionRate, rec.Alpha)
	fmt.Fprintf(w, "Result:       %s\n", verdict(rec.Passed()))
}

func verdict(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func formatStat(v float64) string {
	s := fmt.Sprintf("%.4g", v)
	return strings.TrimPrefix(s, "+")
}
