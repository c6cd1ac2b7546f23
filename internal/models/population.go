package models

import (
	"fmt"
	"sort"
	"strconv"
)

// Member is one synthetic participant of a simulation.
type Member struct {
	Identity  string `json:"identity"`
	Partition string `json:"partition"`

	// Assignments maps experiment label to bucket. It is nil when the
	// population was created without history recording.
	Assignments map[string]Bucket `json:"assignments,omitempty"`

	// Cohorts counts lifetime assignments per bucket.
	Cohorts Tally `json:"cohorts"`
}

// Population owns every member of a run, ordered by creation.
// Partition labels are fixed at creation; assignments only grow.
type Population struct {
	members       []Member
	index         map[string]int
	recordHistory bool
}

// NewPopulation creates a population from identities and their partitions.
// identities and partitions must have the same length and identities must be
// unique.
func NewPopulation(identities, partitions []string, recordHistory bool) (*Population, error) {
	if len(identities) != len(partitions) {
		return nil, fmt.Errorf("identities (%d) and partitions (%d) differ in length", len(identities), len(partitions))
	}
	p := &Population{
		members:       make([]Member, len(identities)),
		index:         make(map[string]int, len(identities)),
		recordHistory: recordHistory,
	}
	for i, id := range identities {
		if _, dup := p.index[id]; dup {
			return nil, fmt.Errorf("duplicate member identity %q", id)
		}
		p.index[id] = i
		p.members[i] = Member{Identity: id, Partition: partitions[i]}
		if recordHistory {
			p.members[i].Assignments = make(map[string]Bucket)
		}
	}
	return p, nil
}

// SequentialIdentities returns the identities "1".."n".
func SequentialIdentities(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.Itoa(i + 1)
	}
	return ids
}

// Len returns the number of members.
func (p *Population) Len() int {
	return len(p.members)
}

// RecordsHistory reports whether per-member assignment history is kept.
func (p *Population) RecordsHistory() bool {
	return p.recordHistory
}

// At returns the member at position i. The returned value is a copy; its
// Assignments map is shared and must not be modified.
func (p *Population) At(i int) Member {
	return p.members[i]
}

// Get looks up a member by identity.
func (p *Population) Get(identity string) (Member, error) {
	i, ok := p.index[identity]
	if !ok {
		return Member{}, fmt.Errorf("%w: %s", ErrUnknownMember, identity)
	}
	return p.members[i], nil
}

// Record stores the bucket a member received in an experiment and updates its
// cohort counters. Recording the same label twice for a member is rejected so
// counters never drift from the history.
func (p *Population) Record(i int, label string, b Bucket) error {
	if i < 0 || i >= len(p.members) {
		return fmt.Errorf("member index %d out of range", i)
	}
	if !b.Valid() {
		return fmt.Errorf("invalid bucket %q", b)
	}
	m := &p.members[i]
	if p.recordHistory {
		if _, seen := m.Assignments[label]; seen {
			return fmt.Errorf("%w: %s already recorded for member %s", ErrDuplicateLabel, label, m.Identity)
		}
		m.Assignments[label] = b
	}
	m.Cohorts.Add(b)
	return nil
}

// Members returns a copy of all members in creation order.
func (p *Population) Members() []Member {
	out := make([]Member, len(p.members))
	copy(out, p.members)
	return out
}

// PartitionSizes counts members per partition label.
func (p *Population) PartitionSizes() map[string]int {
	sizes := make(map[string]int)
	for _, m := range p.members {
		sizes[m.Partition]++
	}
	return sizes
}

// PartitionLabels returns the distinct partition labels present, sorted.
func (p *Population) PartitionLabels() []string {
	sizes := p.PartitionSizes()
	labels := make([]string, 0, len(sizes))
	for l := range sizes {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
