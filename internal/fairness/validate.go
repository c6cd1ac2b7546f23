package fairness

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/bucketsim/internal/models"
)

// DefaultAlpha is the significance level used when none is configured.
const DefaultAlpha = 0.05

// MemberResult is the independence record for one member.
type MemberResult struct {
	Identity    string  `json:"identity"`
	Partition   string  `json:"partition"`
	Control     int     `json:"control"`
	Treatment   int     `json:"treatment"`
	Delta       int     `json:"delta"`
	SignedDelta int     `json:"signed_delta"`
	ChiSquare   float64 `json:"chi_square"`
	PValue      float64 `json:"p_value"`
}

// PartitionResult is the uniformity record for one partition in one
// experiment.
type PartitionResult struct {
	Experiment string  `json:"experiment"`
	Seq        int     `json:"seq"`
	Partition  string  `json:"partition"`
	Control    int     `json:"control"`
	Treatment  int     `json:"treatment"`
	ChiSquare  float64 `json:"chi_square"`
	PValue     float64 `json:"p_value"`
}

// IndependenceReport aggregates member results.
type IndependenceReport struct {
	Deltas  Summary     `json:"deltas"`
	PValues Summary     `json:"p_values"`
	TTest   TTestResult `json:"t_test"`

	// RejectionRate is the share of members whose own split is rejected at
	// alpha. ExpectedRejectionRate is that share for a fair hash.
	RejectionRate         float64 `json:"rejection_rate"`
	ExpectedRejectionRate float64 `json:"expected_rejection_rate"`

	Independent bool `json:"independent"`
}

// UniformityReport aggregates partition results.
type UniformityReport struct {
	PValues       Summary `json:"p_values"`
	RejectionRate float64 `json:"rejection_rate"`
	Uniform       bool    `json:"uniform"`
}

// Report is the full validation outcome of a run.
type Report struct {
	Alpha        float64            `json:"alpha"`
	Rounds       int                `json:"rounds"`
	Members      []MemberResult     `json:"-"`
	Partitions   []PartitionResult  `json:"-"`
	Independence IndependenceReport `json:"independence"`
	Uniformity   UniformityReport   `json:"uniformity"`
}

// Passed reports whether both validations accepted the hash.
func (r *Report) Passed() bool {
	return r.Independence.Independent && r.Uniformity.Uniform
}

// Validator computes fairness reports at a fixed significance level.
type Validator struct {
	alpha float64
}

// NewValidator returns a Validator. alpha must lie in (0, 1).
func NewValidator(alpha float64) (*Validator, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, models.NewConfigurationError("validation.alpha", "must be in (0, 1), got %g", alpha)
	}
	return &Validator{alpha: alpha}, nil
}

// Alpha returns the significance level.
func (v *Validator) Alpha() float64 {
	return v.alpha
}

// Validate runs both validations over a finished population and ledger.
func (v *Validator) Validate(pop *models.Population, ledger *models.Ledger) (*Report, error) {
	if ledger.Len() == 0 {
		return nil, fmt.Errorf("validate: no experiments in ledger")
	}
	members := MemberResults(pop)
	indep, err := v.Independence(members, ledger.Len())
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	parts := PartitionResults(ledger)

	return &Report{
		Alpha:        v.alpha,
		Rounds:       ledger.Len(),
		Members:      members,
		Partitions:   parts,
		Independence: indep,
		Uniformity:   v.Uniformity(parts),
	}, nil
}

// MemberResults computes one independence record per member.
func MemberResults(pop *models.Population) []MemberResult {
	out := make([]MemberResult, pop.Len())
	for i := range out {
		m := pop.At(i)
		chi := ChiSquareEven(m.Cohorts.Control, m.Cohorts.Treatment)
		out[i] = MemberResult{
			Identity:    m.Identity,
			Partition:   m.Partition,
			Control:     m.Cohorts.Control,
			Treatment:   m.Cohorts.Treatment,
			Delta:       m.Cohorts.Delta(),
			SignedDelta: m.Cohorts.SignedDelta(),
			ChiSquare:   chi.Statistic,
			PValue:      chi.PValue,
		}
	}
	return out
}

// Independence summarizes member results. Two checks must both hold:
//
//   - a t-test of signed deltas normalized by rounds against 0 catches a
//     population-wide lean toward one bucket;
//   - the share of members whose own split is rejected must stay within a
//     binomial allowance of the rate a fair hash produces. This catches
//     assignment that follows identity alone, where every member always lands
//     in the same bucket but the signed deltas still cancel out.
func (v *Validator) Independence(members []MemberResult, rounds int) (IndependenceReport, error) {
	if rounds < 1 {
		return IndependenceReport{}, fmt.Errorf("rounds must be positive, got %d", rounds)
	}
	deltas := make([]float64, len(members))
	normalized := make([]float64, len(members))
	pvalues := make([]float64, len(members))
	for i, m := range members {
		deltas[i] = float64(m.Delta)
		normalized[i] = float64(m.SignedDelta) / float64(rounds)
		pvalues[i] = m.PValue
	}

	tt, err := TTest1Samp(normalized, 0)
	switch {
	case errors.Is(err, ErrTooFewSamples):
		// A single member gives no spread to test against; nothing to reject.
		tt = TTestResult{Statistic: math.NaN(), PValue: math.NaN()}
	case err != nil:
		return IndependenceReport{}, fmt.Errorf("t-test over %d members: %w", len(members), err)
	}

	rate := RejectionRate(pvalues, v.alpha)
	expected := NullRejectionRate(rounds, v.alpha)
	balanced := math.IsNaN(tt.PValue) || tt.PValue >= v.alpha

	return IndependenceReport{
		Deltas:                Describe(deltas),
		PValues:               Describe(pvalues),
		TTest:                 tt,
		RejectionRate:         rate,
		ExpectedRejectionRate: expected,
		Independent:           balanced && rate <= binomialCeiling(expected, len(members)),
	}, nil
}

// PartitionResults computes one uniformity record per non-empty partition of
// each experiment, in experiment then partition order.
func PartitionResults(ledger *models.Ledger) []PartitionResult {
	var out []PartitionResult
	for _, e := range ledger.Experiments() {
		for _, label := range e.PartitionLabels() {
			t := e.Tallies[label]
			if t.Total() == 0 {
				continue
			}
			chi := ChiSquareEven(t.Control, t.Treatment)
			out = append(out, PartitionResult{
				Experiment: e.Label,
				Seq:        e.Seq,
				Partition:  label,
				Control:    t.Control,
				Treatment:  t.Treatment,
				ChiSquare:  chi.Statistic,
				PValue:     chi.PValue,
			})
		}
	}
	return out
}

// Uniformity summarizes partition results. A slice is flagged when its
// p-value falls below alpha; the run is uniform when the share of flagged
// slices stays within what alpha predicts, with a binomial allowance of three
// standard deviations.
func (v *Validator) Uniformity(parts []PartitionResult) UniformityReport {
	pvalues := make([]float64, len(parts))
	for i, p := range parts {
		pvalues[i] = p.PValue
	}
	rate := RejectionRate(pvalues, v.alpha)
	return UniformityReport{
		PValues:       Describe(pvalues),
		RejectionRate: rate,
		Uniform:       rate <= binomialCeiling(v.alpha, len(parts)),
	}
}

// binomialCeiling is the highest rejection share accepted over n trials
// that each reject with probability p: p plus three standard deviations.
func binomialCeiling(p float64, n int) float64 {
	if n == 0 {
		return 1
	}
	return p + 3*math.Sqrt(p*(1-p)/float64(n))
}
