// Package store persists completed simulation runs and their validation
// results.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/nvandessel/bucketsim/internal/fairness"
	"github.com/nvandessel/bucketsim/internal/models"
	"github.com/nvandessel/bucketsim/internal/partition"
	"github.com/nvandessel/bucketsim/internal/simulation"
)

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the stored form of a simulation run. Population history is
// not stored; member and partition results are available separately.
type RunRecord struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Members       int       `json:"members"`
	Partitions    int       `json:"partitions"`
	Skewed        bool      `json:"skewed"`
	Rounds        int       `json:"rounds"`
	Seed          uint64    `json:"seed"`
	Workers       int       `json:"workers"`
	LabelLength   int       `json:"label_length"`
	RecordHistory bool      `json:"record_history"`
	Algorithm     string    `json:"algorithm"`
	Alpha         float64   `json:"alpha"`

	Independent            bool    `json:"independent"`
	Uniform                bool    `json:"uniform"`
	TStatistic             float64 `json:"t_statistic"`
	TPValue                float64 `json:"t_pvalue"`
	MemberRejectionRate    float64 `json:"member_rejection_rate"`
	PartitionRejectionRate float64 `json:"partition_rejection_rate"`

	LabelCollisions int           `json:"label_collisions"`
	Duration        time.Duration `json:"duration"`

	// Report is the JSON form of the full fairness report.
	Report json.RawMessage `json:"report,omitempty"`

	// Weights and Experiments are only populated by GetRun.
	Weights     []PartitionRecord  `json:"weights,omitempty"`
	Experiments []ExperimentRecord `json:"experiments,omitempty"`
}

// PartitionRecord is a partition's configured weight and realized size.
type PartitionRecord struct {
	Label   string  `json:"label"`
	Weight  float64 `json:"weight"`
	Members int     `json:"members"`
}

// ExperimentRecord is one stored round with its per-partition tallies.
type ExperimentRecord struct {
	Seq     int                     `json:"seq"`
	Label   string                  `json:"label"`
	Tallies map[string]models.Tally `json:"tallies"`
}

// ResultStore is implemented by every run store.
type ResultStore interface {
	// SaveRun stores a validated run. Saving the same ID twice fails.
	SaveRun(ctx context.Context, run *simulation.Run) error

	// GetRun returns the run with its weights and experiments.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns run summaries, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// MemberResults returns the independence rows of a run in identity order.
	MemberResults(ctx context.Context, id string) ([]fairness.MemberResult, error)

	// PartitionResults returns the uniformity rows of a run in round order.
	PartitionResults(ctx context.Context, id string) ([]fairness.PartitionResult, error)

	// DeleteRun removes a run and everything stored with it.
	DeleteRun(ctx context.Context, id string) error

	Close() error
}

// NewRunRecord flattens run into its stored form, including weights and
// experiments.
func NewRunRecord(run *simulation.Run) (RunRecord, error) {
	if run.Report == nil || run.Ledger == nil || run.Population == nil {
		return RunRecord{}, errors.New("run has not been validated")
	}
	report, err := json.Marshal(run.Report)
	if err != nil {
		return RunRecord{}, err
	}
	cfg := run.Config
	rec := RunRecord{
		ID:            run.ID,
		CreatedAt:     run.CreatedAt.UTC(),
		Members:       cfg.Members,
		Partitions:    cfg.Partitions,
		Skewed:        cfg.Skewed,
		Rounds:        run.Ledger.Len(),
		Seed:          run.Seed,
		Workers:       cfg.Workers,
		LabelLength:   cfg.LabelLength,
		RecordHistory: cfg.RecordHistory,
		Algorithm:     string(run.Algorithm),
		Alpha:         run.Report.Alpha,

		Independent:            run.Report.Independence.Independent,
		Uniform:                run.Report.Uniformity.Uniform,
		TStatistic:             run.Report.Independence.TTest.Statistic,
		TPValue:                run.Report.Independence.TTest.PValue,
		MemberRejectionRate:    run.Report.Independence.RejectionRate,
		PartitionRejectionRate: run.Report.Uniformity.RejectionRate,

		LabelCollisions: run.LabelCollisions,
		Duration:        run.Duration,
		Report:          report,
	}

	sizes := run.Population.PartitionSizes()
	for _, p := range weightsOf(run.Weights) {
		rec.Weights = append(rec.Weights, PartitionRecord{Label: p.Label, Weight: p.Weight, Members: sizes[p.Label]})
	}
	for _, e := range run.Ledger.Experiments() {
		tallies := make(map[string]models.Tally, len(e.Tallies))
		for k, v := range e.Tallies {
			tallies[k] = v
		}
		rec.Experiments = append(rec.Experiments, ExperimentRecord{Seq: e.Seq, Label: e.Label, Tallies: tallies})
	}
	return rec, nil
}

// Summary returns rec without weights and experiments.
func (rec RunRecord) Summary() RunRecord {
	rec.Weights = nil
	rec.Experiments = nil
	return rec
}

// Passed reports whether both validations accepted the hash.
func (rec RunRecord) Passed() bool {
	return rec.Independent && rec.Uniform
}

func weightsOf(w *partition.Weights) []partition.Partition {
	if w == nil {
		return nil
	}
	return w.Partitions()
}

// MarshalJSON encodes non-finite test statistics as null.
func (rec RunRecord) MarshalJSON() ([]byte, error) {
	type plain RunRecord
	return json.Marshal(struct {
		plain
		TStatistic *float64 `json:"t_statistic"`
		TPValue    *float64 `json:"t_pvalue"`
	}{plain(rec), finite(rec.TStatistic), finite(rec.TPValue)})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
