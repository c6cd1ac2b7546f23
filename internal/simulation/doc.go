// Package simulation runs many synthetic experiments over a fixed population
// and collects the bucket tallies the fairness validators consume.
//
// Each round names a fresh experiment, buckets every member with the
// deterministic assigner, and records the result. Assignment within a round
// is spread over worker goroutines that own disjoint slices of the
// population and private tallies; a single writer merges them once the round
// completes, so results do not depend on the worker count.
//
// Usage:
//
//	cfg := config.Default()
//	cfg.Simulation.Members = 1000
//	cfg.Simulation.Partitions = 2
//	cfg.Simulation.Rounds = 1
//	run, err := simulation.Execute(ctx, cfg, simulation.Environment{})
//	if err != nil { ... }
//	fmt.Println(run.Report.Passed())
package simulation
