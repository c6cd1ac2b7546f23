package store

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestNewSQLiteResultStore(t *testing.T) {
	tmpDir := t.TempDir()

	s, err := NewSQLiteResultStore(tmpDir)
	if err != nil {
		t.Fatalf("NewSQLiteResultStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, ".bucketsim", "results.db")); os.IsNotExist(err) {
		t.Error("results.db was not created")
	}
	if s.Path() != ResultsPath(tmpDir) {
		t.Errorf("Path() = %s, want %s", s.Path(), ResultsPath(tmpDir))
	}
}

func TestSQLiteResultStore_SaveGetRun(t *testing.T) {
	s, err := NewSQLiteResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteResultStore() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	run := newTestRun(t, 1<<63+5) // seed above MaxInt64 must round-trip

	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}

	if got.Seed != run.Seed {
		t.Errorf("Seed = %d, want %d", got.Seed, run.Seed)
	}
	if got.Members != 120 || got.Partitions != 3 || !got.Skewed || got.Rounds != 6 {
		t.Errorf("config not preserved: %+v", got.Summary())
	}
	if got.Algorithm != "md5" {
		t.Errorf("Algorithm = %q, want md5", got.Algorithm)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, run.CreatedAt)
	}
	if got.Independent != run.Report.Independence.Independent || got.Uniform != run.Report.Uniformity.Uniform {
		t.Error("verdicts not preserved")
	}
	if len(got.Report) == 0 {
		t.Error("report JSON missing")
	}

	if len(got.Weights) != 3 {
		t.Fatalf("len(Weights) = %d, want 3", len(got.Weights))
	}
	sum, members := 0.0, 0
	for i, p := range got.Weights {
		if want := run.Weights.Partitions()[i]; p.Label != want.Label || p.Weight != want.Weight {
			t.Errorf("Weights[%d] = %+v, want %+v", i, p, want)
		}
		sum += p.Weight
		members += p.Members
	}
	if math.Abs(sum-1) > 1e-9 || members != 120 {
		t.Errorf("weights sum %g, members %d", sum, members)
	}

	if len(got.Experiments) != 6 {
		t.Fatalf("len(Experiments) = %d, want 6", len(got.Experiments))
	}
	for i, e := range run.Ledger.Experiments() {
		stored := got.Experiments[i]
		if stored.Seq != e.Seq || stored.Label != e.Label {
			t.Errorf("experiment %d = %d/%s, want %d/%s", i, stored.Seq, stored.Label, e.Seq, e.Label)
		}
		for partition, tally := range e.Tallies {
			if stored.Tallies[partition] != tally {
				t.Errorf("experiment %s partition %s = %+v, want %+v", e.Label, partition, stored.Tallies[partition], tally)
			}
		}
	}
}

func TestSQLiteResultStore_DuplicateRun(t *testing.T) {
	s, err := NewSQLiteResultStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	run := newTestRun(t, 3)
	ctx := context.Background()
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRun(ctx, run); err == nil {
		t.Error("saving the same run twice should fail")
	}
}

func TestSQLiteResultStore_Results(t *testing.T) {
	s, err := NewSQLiteResultStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	run := newTestRun(t, 9)
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	members, err := s.MemberResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("MemberResults() error = %v", err)
	}
	if len(members) != len(run.Report.Members) {
		t.Fatalf("len(MemberResults) = %d, want %d", len(members), len(run.Report.Members))
	}
	for i, want := range run.Report.Members {
		got := members[i]
		if got.Identity != want.Identity || got.Control != want.Control || got.SignedDelta != want.SignedDelta {
			t.Errorf("member %d = %+v, want %+v", i, got, want)
		}
		if math.Abs(got.PValue-want.PValue) > 1e-12 {
			t.Errorf("member %s p = %g, want %g", want.Identity, got.PValue, want.PValue)
		}
	}

	parts, err := s.PartitionResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("PartitionResults() error = %v", err)
	}
	if len(parts) != len(run.Report.Partitions) {
		t.Fatalf("len(PartitionResults) = %d, want %d", len(parts), len(run.Report.Partitions))
	}
	for i := 1; i < len(parts); i++ {
		if parts[i].Seq < parts[i-1].Seq {
			t.Fatalf("partition results out of round order at %d", i)
		}
	}

	if _, err := s.MemberResults(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("MemberResults(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestSQLiteResultStore_ListAndDelete(t *testing.T) {
	s, err := NewSQLiteResultStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	first := newTestRun(t, 1)
	second := newTestRun(t, 2)
	second.CreatedAt = first.CreatedAt.Add(1)
	if err := s.SaveRun(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRun(ctx, second); err != nil {
		t.Fatal(err)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID {
		t.Fatalf("ListRuns() = %d runs, newest %v", len(runs), runs)
	}
	if runs[0].Experiments != nil {
		t.Error("ListRuns() should not load experiments")
	}

	limited, _ := s.ListRuns(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("ListRuns(1) returned %d runs", len(limited))
	}

	if err := s.DeleteRun(ctx, second.ID); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if _, err := s.GetRun(ctx, second.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(deleted) error = %v, want ErrRunNotFound", err)
	}
	if err := s.DeleteRun(ctx, second.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("DeleteRun(deleted) error = %v, want ErrRunNotFound", err)
	}

	var orphans int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tallies WHERE run_id = ?`, second.ID).Scan(&orphans); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("%d tallies left after delete", orphans)
	}
}

func TestSQLiteResultStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	run := newTestRun(t, 4)

	s, err := NewSQLiteResultStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewSQLiteResultStore(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	if _, err := s.GetRun(ctx, run.ID); err != nil {
		t.Errorf("GetRun() after reopen error = %v", err)
	}
}
