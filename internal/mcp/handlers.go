package mcp

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/bucketsim/internal/config"
	"github.com/nvandessel/bucketsim/internal/export"
	"github.com/nvandessel/bucketsim/internal/pathutil"
	"github.com/nvandessel/bucketsim/internal/ratelimit"
	"github.com/nvandessel/bucketsim/internal/simulation"
)

// MaxAssignments caps members × rounds for a single tool call.
const MaxAssignments = 20_000_000

// DefaultListLimit is the number of runs bucketsim_runs returns by default.
const DefaultListLimit = 20

// registerTools registers all bucketsim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bucketsim_run",
		Description: "Simulate hash-based A/B bucketing over a synthetic population and report independence and uniformity verdicts",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bucketsim_runs",
		Description: "List stored simulation runs, newest first",
	}, s.handleRuns)
}

// runConfig overlays the non-zero fields of args on the server's base
// configuration.
func (s *Server) runConfig(args RunInput) *config.Config {
	cfg := *s.base
	if args.Members > 0 {
		cfg.Simulation.Members = args.Members
	}
	if args.Partitions > 0 {
		cfg.Simulation.Partitions = args.Partitions
	}
	if args.Skewed {
		cfg.Simulation.Skewed = true
	}
	if args.Rounds > 0 {
		cfg.Simulation.Rounds = args.Rounds
	}
	if args.Seed != 0 {
		cfg.Simulation.Seed = args.Seed
	}
	if args.Alpha != 0 {
		cfg.Validation.Alpha = args.Alpha
	}
	if args.Hash != "" {
		cfg.Hash.Algorithm = args.Hash
	}
	return &cfg
}

// handleRun implements the bucketsim_run tool.
func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	var runID string
	defer func() {
		s.auditTool("bucketsim_run", start, retErr, auditParams(map[string]any{
			"members": args.Members, "partitions": args.Partitions, "skewed": args.Skewed,
			"rounds": args.Rounds, "seed": args.Seed, "alpha": args.Alpha, "hash": args.Hash, "save": args.Save,
			"snapshot": pathutil.RedactPath(args.Snapshot),
		}), runID)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "bucketsim_run"); err != nil {
		return nil, RunOutput{}, err
	}

	cfg := s.runConfig(args)
	if err := cfg.Validate(); err != nil {
		return nil, RunOutput{}, err
	}
	// Validate guarantees rounds >= 1; dividing avoids overflowing the product.
	if m, r := cfg.Simulation.Members, cfg.Simulation.Rounds; m > MaxAssignments/r {
		return nil, RunOutput{}, fmt.Errorf("members × rounds = %d × %d exceeds the per-call limit of %d", m, r, MaxAssignments)
	}

	var snapshotPath string
	if args.Snapshot != "" {
		path, err := pathutil.ResolveSnapshotPath(s.root, args.Snapshot)
		if err != nil {
			return nil, RunOutput{}, err
		}
		snapshotPath = path
	}

	run, err := simulation.Execute(ctx, cfg, simulation.Environment{Logger: s.logger})
	if err != nil {
		return nil, RunOutput{}, fmt.Errorf("simulation failed: %w", err)
	}
	runID = run.ID

	out := newRunOutput(run)
	if args.Save {
		if err := s.store.SaveRun(ctx, run); err != nil {
			return nil, RunOutput{}, fmt.Errorf("failed to save run: %w", err)
		}
		out.Saved = true
	}
	if snapshotPath != "" {
		if err := writeSnapshot(snapshotPath, run); err != nil {
			return nil, RunOutput{}, err
		}
		out.Snapshot = snapshotPath
	}
	out.Message = runMessage(out)

	return nil, out, nil
}

func newRunOutput(run *simulation.Run) RunOutput {
	rep := run.Report
	return RunOutput{
		RunID:       run.ID,
		Members:     run.Population.Len(),
		Partitions:  run.Weights.Len(),
		Rounds:      run.Ledger.Len(),
		Seed:        run.Seed,
		Algorithm:   string(run.Algorithm),
		Weights:     run.Weights.Partitions(),
		Sizes:       run.Population.PartitionSizes(),
		Independent: rep.Independence.Independent,
		Uniform:     rep.Uniformity.Uniform,
		Passed:      rep.Passed(),

		TStatistic:             finitePtr(rep.Independence.TTest.Statistic),
		TPValue:                finitePtr(rep.Independence.TTest.PValue),
		MemberRejectionRate:    rep.Independence.RejectionRate,
		PartitionRejectionRate: rep.Uniformity.RejectionRate,
	}
}

func runMessage(out RunOutput) string {
	verdict := "passed"
	if !out.Passed {
		verdict = "failed"
	}
	msg := fmt.Sprintf("%s hash %s over %d members, %d partitions, %d rounds (independent=%t, uniform=%t)",
		out.Algorithm, verdict, out.Members, out.Partitions, out.Rounds, out.Independent, out.Uniform)
	if out.Saved {
		msg += "; saved as " + out.RunID
	}
	if out.Snapshot != "" {
		msg += "; snapshot " + pathutil.RedactPath(out.Snapshot)
	}
	return msg
}

func writeSnapshot(path string, run *simulation.Run) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	snap, err := export.NewSnapshot(run)
	if err != nil {
		return err
	}
	if _, err := export.WriteSnapshot(path, snap); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", pathutil.RedactPath(path), err)
	}
	return nil
}

// handleRuns implements the bucketsim_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bucketsim_runs", start, retErr, auditParams(map[string]any{"limit": args.Limit}), "")
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "bucketsim_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	records, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}

	items := make([]RunListItem, 0, len(records))
	for _, r := range records {
		items = append(items, RunListItem{
			ID:          r.ID,
			CreatedAt:   r.CreatedAt,
			Members:     r.Members,
			Partitions:  r.Partitions,
			Skewed:      r.Skewed,
			Rounds:      r.Rounds,
			Algorithm:   r.Algorithm,
			Independent: r.Independent,
			Uniform:     r.Uniform,
		})
	}
	return nil, RunsOutput{Runs: items, Count: len(items)}, nil
}

func finitePtr(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
