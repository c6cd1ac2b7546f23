package partition

import (
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/bucketsim/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampler_Proportions(t *testing.T) {
	w, err := UniformWeights(4)
	require.NoError(t, err)
	require.NoError(t, w.Adjust())

	s, err := NewSampler(w)
	require.NoError(t, err)

	const n = 200000
	rng := rand.New(rand.NewPCG(11, 12))
	counts := make(map[string]int)
	for _, label := range s.Assign(rng, n) {
		counts[label]++
	}

	for _, p := range w.Partitions() {
		got := float64(counts[p.Label]) / n
		assert.InDelta(t, p.Weight, got, 0.01, "partition %s", p.Label)
	}
}

func TestSampler_SkipsZeroWeight(t *testing.T) {
	w, err := NewWeights([]Partition{{"a", 0}, {"b", 0.5}, {"c", 0}, {"d", 0.5}})
	require.NoError(t, err)
	s, err := NewSampler(w)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 1))
	for i := 0; i < 10000; i++ {
		label := s.Draw(rng)
		require.NotEqual(t, "a", label)
		require.NotEqual(t, "c", label)
	}
}

func TestSampler_EmptyPool(t *testing.T) {
	tests := []struct {
		name string
		w    *Weights
	}{
		{"no partitions", &Weights{}},
		{"all zero", &Weights{parts: []Partition{{"1", 0}, {"2", 0}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSampler(tt.w)
			var poolErr *models.EmptyPoolError
			require.ErrorAs(t, err, &poolErr)
			assert.Equal(t, tt.w.Len(), poolErr.Partitions)
		})
	}
}

func TestGeneratePopulation(t *testing.T) {
	w, err := UniformWeights(3)
	require.NoError(t, err)

	pop, err := GeneratePopulation(w, 900, rand.New(rand.NewPCG(7, 7)), false)
	require.NoError(t, err)
	assert.Equal(t, 900, pop.Len())
	assert.Equal(t, "1", pop.At(0).Identity)
	assert.Equal(t, "900", pop.At(899).Identity)

	total := 0
	for label, size := range pop.PartitionSizes() {
		assert.Contains(t, w.Labels(), label)
		total += size
	}
	assert.Equal(t, 900, total)

	again, err := GeneratePopulation(w, 900, rand.New(rand.NewPCG(7, 7)), false)
	require.NoError(t, err)
	for i := 0; i < pop.Len(); i++ {
		require.Equal(t, pop.At(i).Partition, again.At(i).Partition)
	}
}

func TestGeneratePopulation_Errors(t *testing.T) {
	w, _ := UniformWeights(2)
	var cfgErr *models.ConfigurationError
	_, err := GeneratePopulation(w, 0, rand.New(rand.NewPCG(1, 1)), true)
	assert.ErrorAs(t, err, &cfgErr)

	var poolErr *models.EmptyPoolError
	_, err = GeneratePopulation(&Weights{}, 10, rand.New(rand.NewPCG(1, 1)), true)
	assert.ErrorAs(t, err, &poolErr)
}
