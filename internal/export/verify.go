package export

import (
	"fmt"
	"math"

	"github.com/nvandessel/bucketsim/internal/assign"
	"github.com/nvandessel/bucketsim/internal/models"
	"github.com/nvandessel/bucketsim/internal/partition"
)

// maxReported caps the mismatch rows and problem lines kept in a
// Verification. The counts keep the full totals.
const maxReported = 100

// Mismatch is a recorded assignment that the hash does not reproduce.
type Mismatch struct {
	Identity   string        `json:"identity"`
	Experiment string        `json:"experiment"`
	Recorded   models.Bucket `json:"recorded"`
	Computed   models.Bucket `json:"computed"`
}

// Verification is the outcome of replaying a snapshot.
type Verification struct {
	RunID           string     `json:"run_id"`
	Algorithm       string     `json:"algorithm"`
	Members         int        `json:"members"`
	Experiments     int        `json:"experiments"`
	HistoryRecorded bool       `json:"history_recorded"`
	Checked         int        `json:"checked"`
	MismatchCount   int        `json:"mismatch_count"`
	Mismatches      []Mismatch `json:"mismatches,omitempty"`
	ProblemCount    int        `json:"problem_count"`
	Problems        []string   `json:"problems,omitempty"`
}

// OK reports whether the snapshot replayed without any discrepancy.
func (v *Verification) OK() bool {
	return v.MismatchCount == 0 && v.ProblemCount == 0
}

func (v *Verification) problemf(format string, args ...any) {
	v.ProblemCount++
	if len(v.Problems) < maxReported {
		v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
	}
}

// VerifySnapshot recomputes every assignment in s with its recorded hash
// algorithm. Recorded member history, cohort counters and experiment
// tallies must all agree with the recomputation.
func VerifySnapshot(s *Snapshot) (*Verification, error) {
	assigner, err := assign.New(assign.Algorithm(s.Algorithm))
	if err != nil {
		return nil, err
	}

	v := &Verification{
		RunID:           s.RunID,
		Algorithm:       string(assigner.Algorithm()),
		Members:         len(s.Members),
		Experiments:     len(s.Experiments),
		HistoryRecorded: s.HistoryRecorded(),
	}

	if len(s.Weights) > 0 {
		sum := 0.0
		for _, p := range s.Weights {
			sum += p.Weight
		}
		if math.Abs(sum-1) > partition.SumTolerance {
			v.problemf("partition weights sum to %g", sum)
		}
	}

	labels := make(map[string]bool, len(s.Experiments))
	tallies := make(map[string]map[string]models.Tally, len(s.Experiments))
	for _, e := range s.Experiments {
		if labels[e.Label] {
			v.problemf("experiment label %s appears twice", e.Label)
		}
		labels[e.Label] = true
		tallies[e.Label] = make(map[string]models.Tally)
	}

	for _, m := range s.Members {
		var cohorts models.Tally
		for _, e := range s.Experiments {
			computed := assigner.Assign(m.Identity, e.Label)
			t := tallies[e.Label][m.Partition]
			t.Add(computed)
			tallies[e.Label][m.Partition] = t
			cohorts.Add(computed)

			if !v.HistoryRecorded {
				continue
			}
			recorded, ok := m.Assignments[e.Label]
			if !ok {
				v.problemf("member %s has no assignment for %s", m.Identity, e.Label)
				continue
			}
			v.Checked++
			if recorded != computed {
				v.MismatchCount++
				if len(v.Mismatches) < maxReported {
					v.Mismatches = append(v.Mismatches, Mismatch{
						Identity:   m.Identity,
						Experiment: e.Label,
						Recorded:   recorded,
						Computed:   computed,
					})
				}
			}
		}
		if v.HistoryRecorded && len(m.Assignments) != len(s.Experiments) {
			v.problemf("member %s has %d assignments for %d experiments", m.Identity, len(m.Assignments), len(s.Experiments))
		}
		if m.Cohorts != cohorts {
			v.problemf("member %s cohorts %d/%d, replay gives %d/%d",
				m.Identity, m.Cohorts.Control, m.Cohorts.Treatment, cohorts.Control, cohorts.Treatment)
		}
	}

	for _, e := range s.Experiments {
		replayed := tallies[e.Label]
		for p, want := range replayed {
			if got := e.Tallies[p]; got != want {
				v.problemf("experiment %s partition %s tally %d/%d, replay gives %d/%d",
					e.Label, p, got.Control, got.Treatment, want.Control, want.Treatment)
			}
		}
		for p := range e.Tallies {
			if _, ok := replayed[p]; !ok {
				v.problemf("experiment %s tallies unknown partition %s", e.Label, p)
			}
		}
	}

	return v, nil
}
