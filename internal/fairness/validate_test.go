package fairness

import (
	"strconv"
	"testing"

	"github.com/nvandessel/bucketsim/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildRun records the given bucket sequence for each member and tallies the
// ledger by partition.
func buildRun(t *testing.T, partitions []string, history [][]models.Bucket) (*models.Population, *models.Ledger) {
	t.Helper()
	ids := models.SequentialIdentities(len(partitions))
	pop, err := models.NewPopulation(ids, partitions, true)
	require.NoError(t, err)

	ledger := models.NewLedger()
	rounds := len(history[0])
	for r := 0; r < rounds; r++ {
		label := "EXP" + strconv.Itoa(r)
		_, err := ledger.Open(label)
		require.NoError(t, err)
		tallies := map[string]models.Tally{}
		for i := range ids {
			b := history[i][r]
			require.NoError(t, pop.Record(i, label, b))
			tl := tallies[partitions[i]]
			tl.Add(b)
			tallies[partitions[i]] = tl
		}
		require.NoError(t, ledger.Merge(label, tallies))
	}
	return pop, ledger
}

func alternating(n int, startControl bool) []models.Bucket {
	out := make([]models.Bucket, n)
	b := models.BucketTreatment
	if startControl {
		b = models.BucketControl
	}
	for i := range out {
		out[i] = b
		b = b.Opposite()
	}
	return out
}

func constant(n int, b models.Bucket) []models.Bucket {
	out := make([]models.Bucket, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestNewValidator_Alpha(t *testing.T) {
	for _, alpha := range []float64{0, 1, -0.1, 1.5} {
		_, err := NewValidator(alpha)
		var cfgErr *models.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr, "alpha %v", alpha)
	}
	v, err := NewValidator(0.01)
	require.NoError(t, err)
	assert.Equal(t, 0.01, v.Alpha())
}

func TestValidate_BalancedMembers(t *testing.T) {
	history := [][]models.Bucket{
		alternating(10, true),
		alternating(10, false),
		alternating(10, true),
		alternating(10, false),
	}
	pop, ledger := buildRun(t, []string{"1", "1", "2", "2"}, history)

	v, _ := NewValidator(DefaultAlpha)
	report, err := v.Validate(pop, ledger)
	require.NoError(t, err)

	assert.Equal(t, 10, report.Rounds)
	require.Len(t, report.Members, 4)
	for _, m := range report.Members {
		assert.Equal(t, 5, m.Control)
		assert.Equal(t, 5, m.Treatment)
		assert.Equal(t, 0, m.Delta)
		assert.InDelta(t, 1.0, m.PValue, 1e-12)
	}
	assert.True(t, report.Independence.Independent)
	assert.Equal(t, 0.0, report.Independence.Deltas.Mean)

	// 10 experiments x 2 partitions, each split 1/1.
	require.Len(t, report.Partitions, 20)
	for _, p := range report.Partitions {
		assert.Equal(t, 1, p.Control)
		assert.Equal(t, 1, p.Treatment)
	}
	assert.True(t, report.Uniformity.Uniform)
	assert.True(t, report.Passed())
}

func TestValidate_StickyAssignmentDetected(t *testing.T) {
	// Every member lands in control in every experiment: assignment follows
	// identity, not identity+experiment.
	n, rounds := 40, 30
	partitions := make([]string, n)
	history := make([][]models.Bucket, n)
	for i := range history {
		partitions[i] = "1"
		history[i] = constant(rounds, models.BucketControl)
	}
	// Perturb one member so the signed deltas have spread.
	history[0][0] = models.BucketTreatment

	pop, ledger := buildRun(t, partitions, history)
	v, _ := NewValidator(DefaultAlpha)
	report, err := v.Validate(pop, ledger)
	require.NoError(t, err)

	assert.False(t, report.Independence.Independent)
	assert.Less(t, report.Independence.TTest.PValue, 1e-6)
	assert.Greater(t, report.Independence.RejectionRate, 0.9)
	assert.False(t, report.Uniformity.Uniform, "every partition slice is all control")
	assert.False(t, report.Passed())
}

func TestValidate_IdentityStickyBalanced(t *testing.T) {
	// Assignment follows identity alone: even members always control, odd
	// members always treatment. Signed deltas cancel and every partition
	// slice splits evenly, so only the per-member splits expose it.
	n, rounds := 200, 100
	partitions := make([]string, n)
	history := make([][]models.Bucket, n)
	for i := range history {
		partitions[i] = "1"
		if i%2 == 0 {
			history[i] = constant(rounds, models.BucketControl)
		} else {
			history[i] = constant(rounds, models.BucketTreatment)
		}
	}

	pop, ledger := buildRun(t, partitions, history)
	v, _ := NewValidator(DefaultAlpha)
	report, err := v.Validate(pop, ledger)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, report.Independence.TTest.PValue, 1e-12, "signed deltas cancel")
	assert.True(t, report.Uniformity.Uniform, "each slice splits 100/100")
	assert.Equal(t, 1.0, report.Independence.RejectionRate)
	assert.Less(t, report.Independence.ExpectedRejectionRate, 0.1)
	assert.False(t, report.Independence.Independent)
	assert.False(t, report.Passed())
}

func TestValidate_SingleMember(t *testing.T) {
	pop, ledger := buildRun(t, []string{"1"}, [][]models.Bucket{alternating(4, true)})
	v, _ := NewValidator(DefaultAlpha)

	report, err := v.Validate(pop, ledger)
	require.NoError(t, err)
	assert.True(t, report.Independence.Independent, "one member cannot reject independence")
}

func TestValidate_EmptyLedger(t *testing.T) {
	pop, err := models.NewPopulation([]string{"1", "2"}, []string{"1", "1"}, false)
	require.NoError(t, err)
	v, _ := NewValidator(DefaultAlpha)

	_, err = v.Validate(pop, models.NewLedger())
	assert.Error(t, err)
}

func TestPartitionResults_SkipsEmptyPartitions(t *testing.T) {
	ledger := models.NewLedger()
	_, err := ledger.Open("A")
	require.NoError(t, err)
	require.NoError(t, ledger.Merge("A", map[string]models.Tally{
		"1": {Control: 3, Treatment: 2},
		"2": {},
	}))

	results := PartitionResults(ledger)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].Partition)
	assert.Equal(t, 1, results[0].Seq)
}
