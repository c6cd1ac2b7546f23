package store

import (
	"context"
	"testing"

	"github.com/nvandessel/bucketsim/internal/config"
	"github.com/nvandessel/bucketsim/internal/simulation"
)

// newTestRun executes a small deterministic simulation.
func newTestRun(t *testing.T, seed uint64) *simulation.Run {
	t.Helper()

	cfg := config.Default()
	cfg.Simulation.Members = 120
	cfg.Simulation.Partitions = 3
	cfg.Simulation.Skewed = true
	cfg.Simulation.Rounds = 6
	cfg.Simulation.Seed = seed
	cfg.Simulation.Workers = 2

	run, err := simulation.Execute(context.Background(), cfg, simulation.Environment{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return run
}
