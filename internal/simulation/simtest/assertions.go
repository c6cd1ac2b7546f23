// Package simtest provides assertions over simulation runs for tests.
package simtest

import (
	"math"
	"testing"

	"github.com/nvandessel/bucketsim/internal/fairness"
	"github.com/nvandessel/bucketsim/internal/models"
	"github.com/nvandessel/bucketsim/internal/partition"
	"github.com/nvandessel/bucketsim/internal/simulation"
)

// AssertWeightsSumToOne asserts the weight invariant.
func AssertWeightsSumToOne(t testing.TB, w *partition.Weights) {
	t.Helper()
	if sum := w.Sum(); math.Abs(sum-1) > partition.SumTolerance {
		t.Errorf("AssertWeightsSumToOne: weights sum to %.12f", sum)
	}
}

// AssertControlFraction asserts that every experiment's control share lies in
// [lo, hi].
func AssertControlFraction(t testing.TB, run *simulation.Run, lo, hi float64) {
	t.Helper()
	for seq := 1; seq <= run.Ledger.Len(); seq++ {
		f, err := run.ControlFraction(seq)
		if err != nil {
			t.Fatalf("AssertControlFraction: %v", err)
		}
		if f < lo || f > hi {
			t.Errorf("AssertControlFraction: experiment %d control fraction %.4f not in [%.4f, %.4f]", seq, f, lo, hi)
		}
	}
}

// AssertPartitionSizes asserts that each partition received within tol
// (absolute members) of weight*members.
func AssertPartitionSizes(t testing.TB, run *simulation.Run, tol int) {
	t.Helper()
	sizes := run.Population.PartitionSizes()
	n := run.Population.Len()
	for _, p := range run.Weights.Partitions() {
		want := p.Weight * float64(n)
		got := sizes[p.Label]
		if math.Abs(float64(got)-want) > float64(tol) {
			t.Errorf("AssertPartitionSizes: partition %s has %d members, want %.0f±%d", p.Label, got, want, tol)
		}
	}
}

// AssertCohortsMatchHistory asserts that every member's counters equal the
// counts of its recorded history, and that each member was assigned exactly
// once per experiment.
func AssertCohortsMatchHistory(t testing.TB, run *simulation.Run) {
	t.Helper()
	if !run.Population.RecordsHistory() {
		t.Fatal("AssertCohortsMatchHistory: population has no history")
	}
	rounds := run.Ledger.Len()
	for _, m := range run.Population.Members() {
		var counted models.Tally
		for _, b := range m.Assignments {
			counted.Add(b)
		}
		if counted != m.Cohorts {
			t.Errorf("AssertCohortsMatchHistory: member %s counters %+v, history %+v", m.Identity, m.Cohorts, counted)
		}
		if len(m.Assignments) != rounds {
			t.Errorf("AssertCohortsMatchHistory: member %s has %d assignments, want %d", m.Identity, len(m.Assignments), rounds)
		}
	}
}

// AssertTalliesCoverPopulation asserts that every experiment tallied every
// member exactly once, per partition.
func AssertTalliesCoverPopulation(t testing.TB, run *simulation.Run) {
	t.Helper()
	sizes := run.Population.PartitionSizes()
	for _, e := range run.Ledger.Experiments() {
		for label, size := range sizes {
			if got := e.Tallies[label].Total(); got != size {
				t.Errorf("AssertTalliesCoverPopulation: experiment %s partition %s tallied %d, want %d", e.Label, label, got, size)
			}
		}
	}
}

// AssertPartitionsUniform asserts every partition slice has a chi-square
// p-value of at least minP.
func AssertPartitionsUniform(t testing.TB, report *fairness.Report, minP float64) {
	t.Helper()
	for _, p := range report.Partitions {
		if p.PValue < minP {
			t.Errorf("AssertPartitionsUniform: experiment %s partition %s p=%.6f < %.6f (control=%d treatment=%d)",
				p.Experiment, p.Partition, p.PValue, minP, p.Control, p.Treatment)
		}
	}
}

// AssertIndependent asserts the cross-experiment t-test p-value is at least
// minP.
func AssertIndependent(t testing.TB, report *fairness.Report, minP float64) {
	t.Helper()
	if p := report.Independence.TTest.PValue; p < minP {
		t.Errorf("AssertIndependent: t-test p=%.6f < %.6f (t=%.4f)", p, minP, report.Independence.TTest.Statistic)
	}
}
