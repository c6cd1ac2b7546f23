// Package partition builds partition weight tables and assigns population
// members to partitions according to those weights.
package partition

import (
	"math"
	"strconv"

	"github.com/nvandessel/bucketsim/internal/models"
	"gonum.org/v1/gonum/floats"
)

// SumTolerance is the allowed drift of the weight sum from 1.0.
const SumTolerance = 1e-9

// Partition is a labelled sub-population with a relative weight.
type Partition struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// Weights is an ordered set of partitions whose weights sum to 1.0.
type Weights struct {
	parts []Partition
}

// UniformWeights returns n partitions labelled "1".."n", each weighted 1/n.
func UniformWeights(n int) (*Weights, error) {
	if n < 1 {
		return nil, models.NewConfigurationError("partitions", "must be at least 1, got %d", n)
	}
	parts := make([]Partition, n)
	for i := range parts {
		parts[i] = Partition{Label: strconv.Itoa(i + 1), Weight: 1.0 / float64(n)}
	}
	return &Weights{parts: parts}, nil
}

// NewWeights builds a weight table from explicit partitions. Labels must be
// unique and weights non-negative; the sum must be 1.0 within SumTolerance.
func NewWeights(parts []Partition) (*Weights, error) {
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		if seen[p.Label] {
			return nil, models.NewConfigurationError("partitions", "duplicate label %q", p.Label)
		}
		seen[p.Label] = true
		if math.IsNaN(p.Weight) || p.Weight < 0 {
			return nil, models.NewConfigurationError("partitions", "weight of %q must be non-negative, got %g", p.Label, p.Weight)
		}
	}
	w := &Weights{parts: append([]Partition(nil), parts...)}
	if sum := w.Sum(); len(parts) > 0 && math.Abs(sum-1) > SumTolerance {
		return nil, models.NewConfigurationError("partitions", "weights sum to %g, want 1", sum)
	}
	return w, nil
}

// Len returns the number of partitions.
func (w *Weights) Len() int {
	return len(w.parts)
}

// Partitions returns a copy of the partitions in label order.
func (w *Weights) Partitions() []Partition {
	return append([]Partition(nil), w.parts...)
}

// Labels returns the partition labels in order.
func (w *Weights) Labels() []string {
	labels := make([]string, len(w.parts))
	for i, p := range w.parts {
		labels[i] = p.Label
	}
	return labels
}

// Weight returns the weight of label, or 0 if absent.
func (w *Weights) Weight(label string) float64 {
	for _, p := range w.parts {
		if p.Label == label {
			return p.Weight
		}
	}
	return 0
}

// Values returns the weights in partition order.
func (w *Weights) Values() []float64 {
	vals := make([]float64, len(w.parts))
	for i, p := range w.parts {
		vals[i] = p.Weight
	}
	return vals
}

// Sum returns the total weight.
func (w *Weights) Sum() float64 {
	return floats.Sum(w.Values())
}

// Adjust skews the distribution by moving half of the smaller of the last two
// partitions' weights from the last partition to the one before it. The total
// is unchanged. Calling Adjust repeatedly keeps skewing the same pair.
func (w *Weights) Adjust() error {
	n := len(w.parts)
	if n < 2 {
		return models.NewConfigurationError("partitions", "skewed weights need at least 2 partitions, got %d", n)
	}
	first := &w.parts[n-1]
	second := &w.parts[n-2]

	transfer := math.Min(first.Weight, second.Weight) / 2
	first.Weight -= transfer
	second.Weight += transfer
	return nil
}
