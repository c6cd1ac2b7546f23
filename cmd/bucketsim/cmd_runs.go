package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/nvandessel/bucketsim/internal/export"
	"github.com/nvandessel/bucketsim/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs stored with 'bucketsim run --save'",
		Long: `List, show, export and delete simulation runs stored in
<root>/.bucketsim/results.db.

Examples:
  bucketsim runs list
  bucketsim runs show 6f1c2d9e-...
  bucketsim runs export 6f1c2d9e-... --csv members.csv
  bucketsim runs delete 6f1c2d9e-...`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsExportCmd(),
		newRunsDeleteCmd(),
	)

	return cmd
}

// openResults opens the results store under --root without creating it.
func openResults(cmd *cobra.Command) (*store.SQLiteResultStore, error) {
	root, _ := cmd.Flags().GetString("root")
	path := store.ResultsPath(root)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no results database at %s (run 'bucketsim run --save' first)", path)
		}
		return nil, err
	}
	return store.OpenSQLiteResultStore(path)
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			s, err := openResults(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			for i := range runs {
				runs[i].Report = nil
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored runs.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tMEMBERS\tPARTITIONS\tROUNDS\tHASH\tRESULT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Members, r.Partitions, r.Rounds, r.Algorithm, verdict(r.Passed()))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int("limit", 0, "Maximum number of runs to list (0 = all)")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			showRounds, _ := cmd.Flags().GetBool("rounds")

			s, err := openResults(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			if !showRounds {
				rec.Experiments = nil
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(rec)
			}

			out := cmd.OutOrStdout()
			printRunRecord(out, rec)
			if showRounds {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Rounds:")
				for _, e := range rec.Experiments {
					fmt.Fprintf(out, "  %4d  %s", e.Seq, e.Label)
					for _, p := range rec.Weights {
						t := e.Tallies[p.Label]
						fmt.Fprintf(out, "  %s=%d/%d", p.Label, t.Control, t.Treatment)
					}
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}

	cmd.Flags().Bool("rounds", false, "Include per-round control/treatment tallies")

	return cmd
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a stored run's results as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			csvPath, _ := cmd.Flags().GetString("csv")
			partitionCSVPath, _ := cmd.Flags().GetString("partition-csv")
			if csvPath == "" && partitionCSVPath == "" {
				return fmt.Errorf("nothing to export: set --csv and/or --partition-csv")
			}

			s, err := openResults(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			id := args[0]
			result := map[string]interface{}{"id": id}
			if csvPath != "" {
				rows, err := s.MemberResults(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("failed to load member results: %w", err)
				}
				if err := writeCSVFile(csvPath, func(w io.Writer) (int, error) {
					return export.WriteMemberCSV(w, rows, export.DefaultCSVConfig())
				}); err != nil {
					return err
				}
				result["csv"] = csvPath
				result["members"] = len(rows)
			}
			if partitionCSVPath != "" {
				rows, err := s.PartitionResults(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("failed to load partition results: %w", err)
				}
				if err := writeCSVFile(partitionCSVPath, func(w io.Writer) (int, error) {
					return export.WritePartitionCSV(w, rows, export.DefaultCSVConfig())
				}); err != nil {
					return err
				}
				result["partition_csv"] = partitionCSVPath
				result["partition_rows"] = len(rows)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			if csvPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d member rows to %s\n", result["members"], csvPath)
			}
			if partitionCSVPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d partition rows to %s\n", result["partition_rows"], partitionCSVPath)
			}
			return nil
		},
	}

	cmd.Flags().String("csv", "", "Write per-member results to this CSV file")
	cmd.Flags().String("partition-csv", "", "Write per-partition results to this CSV file")

	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored run and its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			s, err := openResults(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteRun(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "deleted",
					"id":     args[0],
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}
