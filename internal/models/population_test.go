package models

import (
	"errors"
	"testing"
)

func TestNewPopulation(t *testing.T) {
	tests := []struct {
		name       string
		identities []string
		partitions []string
		wantErr    bool
	}{
		{"matching lengths", []string{"1", "2"}, []string{"1", "2"}, false},
		{"empty", nil, nil, false},
		{"length mismatch", []string{"1", "2"}, []string{"1"}, true},
		{"duplicate identity", []string{"1", "1"}, []string{"1", "2"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPopulation(tt.identities, tt.partitions, true)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPopulation() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.Len() != len(tt.identities) {
				t.Errorf("Len() = %d, want %d", p.Len(), len(tt.identities))
			}
		})
	}
}

func TestSequentialIdentities(t *testing.T) {
	ids := SequentialIdentities(3)
	want := []string{"1", "2", "3"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestPopulation_Record(t *testing.T) {
	p, err := NewPopulation([]string{"a", "b"}, []string{"1", "2"}, true)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Record(0, "EXP1", BucketControl); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := p.Record(0, "EXP2", BucketTreatment); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	m := p.At(0)
	if m.Cohorts.Control != 1 || m.Cohorts.Treatment != 1 {
		t.Errorf("Cohorts = %+v, want 1/1", m.Cohorts)
	}
	if m.Assignments["EXP1"] != BucketControl || m.Assignments["EXP2"] != BucketTreatment {
		t.Errorf("Assignments = %v", m.Assignments)
	}
	if m.Partition != "1" {
		t.Errorf("Partition = %q, want 1", m.Partition)
	}

	err = p.Record(0, "EXP1", BucketTreatment)
	if !errors.Is(err, ErrDuplicateLabel) {
		t.Errorf("duplicate Record() error = %v, want ErrDuplicateLabel", err)
	}
	if got := p.At(0).Cohorts.Total(); got != 2 {
		t.Errorf("rejected record changed counters: total = %d", got)
	}

	if err := p.Record(5, "EXP3", BucketControl); err == nil {
		t.Error("Record() with out-of-range index should fail")
	}
	if err := p.Record(1, "EXP3", Bucket("maybe")); err == nil {
		t.Error("Record() with invalid bucket should fail")
	}
}

func TestPopulation_WithoutHistory(t *testing.T) {
	p, err := NewPopulation([]string{"a"}, []string{"1"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if p.RecordsHistory() {
		t.Fatal("RecordsHistory() = true, want false")
	}
	for _, label := range []string{"X", "Y", "Z"} {
		if err := p.Record(0, label, BucketTreatment); err != nil {
			t.Fatalf("Record(%s) error = %v", label, err)
		}
	}
	m := p.At(0)
	if m.Assignments != nil {
		t.Errorf("Assignments = %v, want nil", m.Assignments)
	}
	if m.Cohorts.Treatment != 3 {
		t.Errorf("Treatment = %d, want 3", m.Cohorts.Treatment)
	}
}

func TestPopulation_Get(t *testing.T) {
	p, _ := NewPopulation([]string{"a", "b"}, []string{"1", "1"}, false)

	m, err := p.Get("b")
	if err != nil || m.Identity != "b" {
		t.Errorf("Get(b) = %+v, %v", m, err)
	}
	if _, err := p.Get("zzz"); !errors.Is(err, ErrUnknownMember) {
		t.Errorf("Get(zzz) error = %v, want ErrUnknownMember", err)
	}
}

func TestPopulation_PartitionSizes(t *testing.T) {
	p, _ := NewPopulation([]string{"a", "b", "c", "d"}, []string{"2", "1", "2", "3"}, false)

	sizes := p.PartitionSizes()
	if sizes["1"] != 1 || sizes["2"] != 2 || sizes["3"] != 1 {
		t.Errorf("PartitionSizes() = %v", sizes)
	}
	labels := p.PartitionLabels()
	if len(labels) != 3 || labels[0] != "1" || labels[2] != "3" {
		t.Errorf("PartitionLabels() = %v", labels)
	}
}
