package models

import (
	"fmt"
	"sort"
)

// Experiment is one simulated A/B test round.
type Experiment struct {
	Seq     int              `json:"seq"`
	Label   string           `json:"label"`
	Tallies map[string]Tally `json:"tallies"` // partition label -> tally
}

// Total sums the tallies across partitions.
func (e *Experiment) Total() Tally {
	var t Tally
	for _, pt := range e.Tallies {
		t.Merge(pt)
	}
	return t
}

// PartitionLabels returns the tallied partitions in sorted order.
func (e *Experiment) PartitionLabels() []string {
	labels := make([]string, 0, len(e.Tallies))
	for l := range e.Tallies {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Ledger holds the experiments of a run in execution order.
type Ledger struct {
	experiments []*Experiment
	byLabel     map[string]*Experiment
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{byLabel: make(map[string]*Experiment)}
}

// Open registers a new experiment. Labels must be unique within the ledger.
func (l *Ledger) Open(label string) (*Experiment, error) {
	if _, exists := l.byLabel[label]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateLabel, label)
	}
	e := &Experiment{
		Seq:     len(l.experiments) + 1,
		Label:   label,
		Tallies: make(map[string]Tally),
	}
	l.experiments = append(l.experiments, e)
	l.byLabel[label] = e
	return e, nil
}

// Merge adds partition tallies into the experiment named label.
func (l *Ledger) Merge(label string, tallies map[string]Tally) error {
	e, ok := l.byLabel[label]
	if !ok {
		return fmt.Errorf("unknown experiment %q", label)
	}
	for partition, t := range tallies {
		cur := e.Tallies[partition]
		cur.Merge(t)
		e.Tallies[partition] = cur
	}
	return nil
}

// Has reports whether label is already registered.
func (l *Ledger) Has(label string) bool {
	_, ok := l.byLabel[label]
	return ok
}

// Get returns the experiment named label.
func (l *Ledger) Get(label string) (*Experiment, bool) {
	e, ok := l.byLabel[label]
	return e, ok
}

// Len returns the number of experiments.
func (l *Ledger) Len() int {
	return len(l.experiments)
}

// Experiments returns the experiments in execution order.
func (l *Ledger) Experiments() []*Experiment {
	out := make([]*Experiment, len(l.experiments))
	copy(out, l.experiments)
	return out
}
