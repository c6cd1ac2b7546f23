package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestInMemoryResultStore(t *testing.T) {
	s := NewInMemoryResultStore()
	ctx := context.Background()

	first := newTestRun(t, 10)
	second := newTestRun(t, 11)
	second.CreatedAt = first.CreatedAt.Add(1)

	if err := s.SaveRun(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRun(ctx, second); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRun(ctx, first); err == nil {
		t.Error("duplicate SaveRun() should fail")
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID {
		t.Fatalf("ListRuns() newest-first ordering broken: %v", runs)
	}
	if runs[0].Experiments != nil || runs[0].Weights != nil {
		t.Error("ListRuns() should return summaries")
	}

	got, err := s.GetRun(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Experiments) != first.Ledger.Len() {
		t.Errorf("len(Experiments) = %d, want %d", len(got.Experiments), first.Ledger.Len())
	}

	members, _ := s.MemberResults(ctx, first.ID)
	if len(members) != first.Population.Len() {
		t.Errorf("len(MemberResults) = %d, want %d", len(members), first.Population.Len())
	}

	if err := s.DeleteRun(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PartitionResults(ctx, first.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("PartitionResults(deleted) error = %v", err)
	}
}

func TestRunRecord_MarshalJSON(t *testing.T) {
	rec := RunRecord{ID: "r1", TStatistic: math.Inf(1), TPValue: math.NaN()}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"t_statistic":null`) || !strings.Contains(s, `"t_pvalue":null`) {
		t.Errorf("non-finite statistics not encoded as null: %s", s)
	}
	if !strings.Contains(s, `"id":"r1"`) {
		t.Errorf("id missing: %s", s)
	}
}

func TestNewRunRecord_Unvalidated(t *testing.T) {
	run := newTestRun(t, 12)
	run.Report = nil
	if _, err := NewRunRecord(run); err == nil {
		t.Error("NewRunRecord() should reject a run without a report")
	}
}
