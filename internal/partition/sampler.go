package partition

import (
	"math/rand/v2"
	"sort"

	"github.com/nvandessel/bucketsim/internal/models"
	"gonum.org/v1/gonum/floats"
)

// Sampler draws partition labels with probability proportional to weight.
// Draws are independent and with replacement, so realized proportions only
// approach the weights as the population grows; a low-weight partition can
// end up empty.
type Sampler struct {
	labels     []string
	cumulative []float64
}

// NewSampler builds a sampler from w. It returns *models.EmptyPoolError when
// there is nothing to draw from.
func NewSampler(w *Weights) (*Sampler, error) {
	parts := w.Partitions()
	labels := make([]string, 0, len(parts))
	vals := make([]float64, 0, len(parts))
	for _, p := range parts {
		if p.Weight <= 0 {
			continue
		}
		labels = append(labels, p.Label)
		vals = append(vals, p.Weight)
	}
	if len(vals) == 0 {
		return nil, &models.EmptyPoolError{Partitions: len(parts), TotalWeight: w.Sum()}
	}
	return &Sampler{
		labels:     labels,
		cumulative: floats.CumSum(make([]float64, len(vals)), vals),
	}, nil
}

// Draw returns one partition label.
func (s *Sampler) Draw(rng *rand.Rand) string {
	total := s.cumulative[len(s.cumulative)-1]
	x := rng.Float64() * total
	// First index whose cumulative weight exceeds x.
	i := sort.Search(len(s.cumulative), func(i int) bool { return s.cumulative[i] > x })
	if i == len(s.cumulative) {
		i--
	}
	return s.labels[i]
}

// Assign draws a partition for each of n members.
func (s *Sampler) Assign(rng *rand.Rand, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s.Draw(rng)
	}
	return out
}

// GeneratePopulation creates n members with identities "1".."n" and
// partitions drawn from w.
func GeneratePopulation(w *Weights, n int, rng *rand.Rand, recordHistory bool) (*models.Population, error) {
	if n < 1 {
		return nil, models.NewConfigurationError("members", "must be at least 1, got %d", n)
	}
	s, err := NewSampler(w)
	if err != nil {
		return nil, err
	}
	return models.NewPopulation(models.SequentialIdentities(n), s.Assign(rng, n), recordHistory)
}
