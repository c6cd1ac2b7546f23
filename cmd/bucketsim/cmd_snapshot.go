package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/bucketsim/internal/export"
	"github.com/spf13/cobra"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and verify run snapshots",
		Long: `Snapshots are written by 'bucketsim run --snapshot PATH'. They hold the
population, every experiment and, unless the run used --no-history, each
member's recorded buckets.

Examples:
  bucketsim snapshot info run.json.gz
  bucketsim snapshot verify run.json.gz`,
	}

	cmd.AddCommand(
		newSnapshotInfoCmd(),
		newSnapshotVerifyCmd(),
	)

	return cmd
}

func newSnapshotInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Print a snapshot's header without reading its body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			h, err := export.ReadHeader(args[0])
			if err != nil {
				return fmt.Errorf("failed to read snapshot header: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(h)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Snapshot %s\n", args[0])
			fmt.Fprintf(out, "  format:      v%d\n", h.Version)
			fmt.Fprintf(out, "  run:         %s\n", h.RunID)
			fmt.Fprintf(out, "  created:     %s\n", h.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(out, "  hash:        %s\n", h.Algorithm)
			fmt.Fprintf(out, "  members:     %d\n", h.MemberCount)
			fmt.Fprintf(out, "  experiments: %d\n", h.ExperimentCount)
			fmt.Fprintf(out, "  history:     %v\n", h.HistoryRecorded)
			fmt.Fprintf(out, "  checksum:    %s\n", h.Checksum)
			return nil
		},
	}
}

func newSnapshotVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify a snapshot's checksum and replay its assignments",
		Long: `Verify the SHA-256 checksum of a snapshot, then recompute every
assignment it records with the hash algorithm it was produced with. Member
histories, cohort counters and per-partition tallies must all match.

Examples:
  bucketsim snapshot verify ~/.bucketsim/snapshots/snapshot-20260206-120000-6f1c2d9e.json.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]
			jsonOut, _ := cmd.Flags().GetBool("json")

			snap, _, err := export.ReadSnapshot(filePath)
			if err != nil {
				if jsonOut {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
						"file":    filePath,
						"valid":   false,
						"error":   err.Error(),
						"message": "Failed to read snapshot",
					})
				}
				return fmt.Errorf("failed to read snapshot: %w", err)
			}

			v, err := export.VerifySnapshot(snap)
			if err != nil {
				return fmt.Errorf("failed to verify snapshot: %w", err)
			}

			if jsonOut {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"file":         filePath,
					"valid":        v.OK(),
					"verification": v,
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				if v.OK() {
					fmt.Fprintf(out, "OK: %d assignments replayed\n", v.Checked)
				} else {
					fmt.Fprintf(out, "FAILED: %d mismatched assignments, %d problems\n", v.MismatchCount, v.ProblemCount)
				}
				fmt.Fprintf(out, "  File: %s\n", filePath)
				fmt.Fprintf(out, "  Run:  %s (%s, %d members, %d experiments)\n", v.RunID, v.Algorithm, v.Members, v.Experiments)
				if !v.HistoryRecorded {
					fmt.Fprintln(out, "  History not recorded: tallies replayed from partitions")
				}
				for _, m := range v.Mismatches {
					fmt.Fprintf(out, "  mismatch: %s in %s recorded %s, computed %s\n", m.Identity, m.Experiment, m.Recorded, m.Computed)
				}
				for _, p := range v.Problems {
					fmt.Fprintf(out, "  problem: %s\n", p)
				}
				if shown := len(v.Mismatches) + len(v.Problems); shown < v.MismatchCount+v.ProblemCount {
					fmt.Fprintf(out, "  ... %d more not shown\n", v.MismatchCount+v.ProblemCount-shown)
				}
			}

			if !v.OK() {
				return fmt.Errorf("snapshot verification failed")
			}
			return nil
		},
	}
}
