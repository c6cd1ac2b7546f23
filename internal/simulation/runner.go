package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/nvandessel/bucketsim/internal/assign"
	"github.com/nvandessel/bucketsim/internal/logging"
	"github.com/nvandessel/bucketsim/internal/models"
	"golang.org/x/sync/errgroup"
)

// cancelCheckInterval is how many members a worker buckets between context
// checks.
const cancelCheckInterval = 4096

// Simulator executes experiment rounds against a population.
type Simulator struct {
	assigner *assign.Assigner
	labels   *assign.LabelGenerator
	workers  int
	runID    string
	logger   *slog.Logger
	rounds   *logging.RoundLogger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithWorkers bounds the goroutines used per round. Values below 1 select
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Simulator) {
		if n < 1 {
			n = runtime.GOMAXPROCS(0)
		}
		s.workers = n
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRoundLogger traces every round to rl.
func WithRoundLogger(rl *logging.RoundLogger) Option {
	return func(s *Simulator) { s.rounds = rl }
}

// WithRunID tags log output and round traces with id.
func WithRunID(id string) Option {
	return func(s *Simulator) { s.runID = id }
}

// NewSimulator returns a Simulator using assigner for buckets and labels for
// experiment names.
func NewSimulator(assigner *assign.Assigner, labels *assign.LabelGenerator, opts ...Option) *Simulator {
	s := &Simulator{
		assigner: assigner,
		labels:   labels,
		workers:  runtime.GOMAXPROCS(0),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes rounds experiments over pop and returns the ledger.
func (s *Simulator) Run(ctx context.Context, pop *models.Population, rounds int) (*models.Ledger, error) {
	if rounds < 1 {
		return nil, models.NewConfigurationError("rounds", "must be a positive integer, got %d", rounds)
	}
	ledger := models.NewLedger()
	if err := s.Extend(ctx, pop, ledger, rounds); err != nil {
		return ledger, err
	}
	return ledger, nil
}

// Extend runs additional rounds, appending to ledger. Labels already in ledger
// are reserved first so a fresh generator never reissues them. Rounds
// completed before an error stay recorded.
func (s *Simulator) Extend(ctx context.Context, pop *models.Population, ledger *models.Ledger, rounds int) error {
	for _, e := range ledger.Experiments() {
		s.labels.Reserve(e.Label)
	}
	for r := 0; r < rounds; r++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("round %d: %w", ledger.Len()+1, err)
		}
		label, err := s.labels.Next()
		if err != nil {
			return fmt.Errorf("round %d: %w", ledger.Len()+1, err)
		}
		if err := s.RunRound(ctx, pop, ledger, label); err != nil {
			return err
		}
	}
	return nil
}

// RunRound buckets every member of pop for the experiment label and records
// the outcome. When assignment fails or the context is cancelled, neither
// pop nor ledger is touched. The ledger entry is opened only after every
// member is recorded, so a Record error leaves the ledger unchanged; members
// recorded before that error keep the label.
func (s *Simulator) RunRound(ctx context.Context, pop *models.Population, ledger *models.Ledger, label string) error {
	if ledger.Has(label) {
		return fmt.Errorf("round %q: %w", label, models.ErrDuplicateLabel)
	}
	start := time.Now()

	buckets, partials, err := s.assignAll(ctx, pop, label)
	if err != nil {
		return fmt.Errorf("round %q: %w", label, err)
	}

	for i, b := range buckets {
		if err := pop.Record(i, label, b); err != nil {
			return fmt.Errorf("round %q: %w", label, err)
		}
	}
	exp, err := ledger.Open(label)
	if err != nil {
		return fmt.Errorf("round %q: %w", label, err)
	}
	for _, p := range partials {
		if err := ledger.Merge(label, p); err != nil {
			return fmt.Errorf("round %q: %w", label, err)
		}
	}

	elapsed := time.Since(start)
	s.trace(exp, elapsed)
	return nil
}

// assignAll computes buckets for every member. Each worker owns a contiguous
// slice of buckets and its own tally map, so nothing is shared while the
// group runs.
func (s *Simulator) assignAll(ctx context.Context, pop *models.Population, label string) ([]models.Bucket, []map[string]models.Tally, error) {
	n := pop.Len()
	buckets := make([]models.Bucket, n)
	workers := max(min(s.workers, n), 1)
	chunk := (n + workers - 1) / workers
	partials := make([]map[string]models.Tally, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		lo := w * chunk
		hi := min(lo+chunk, n)
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			local := make(map[string]models.Tally)
			for i := lo; i < hi; i++ {
				if (i-lo)%cancelCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				m := pop.At(i)
				b := s.assigner.Assign(m.Identity, label)
				buckets[i] = b
				t := local[m.Partition]
				t.Add(b)
				local[m.Partition] = t
			}
			partials[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return buckets, partials, nil
}

func (s *Simulator) trace(exp *models.Experiment, elapsed time.Duration) {
	tallies := make(map[string]map[string]int, len(exp.Tallies))
	for p, t := range exp.Tallies {
		tallies[p] = map[string]int{
			string(models.BucketControl):   t.Control,
			string(models.BucketTreatment): t.Treatment,
		}
	}
	s.rounds.LogRound(logging.RoundEvent{
		RunID:    s.runID,
		Seq:      exp.Seq,
		Label:    exp.Label,
		Tallies:  tallies,
		Duration: elapsed,
	})

	total := exp.Total()
	s.logger.Debug("round complete",
		"run", s.runID,
		"seq", exp.Seq,
		"label", exp.Label,
		"control", total.Control,
		"treatment", total.Treatment,
		"elapsed", elapsed)
	s.logger.Log(context.Background(), logging.LevelTrace, "round tallies",
		"run", s.runID,
		"label", exp.Label,
		"tallies", tallies)
}
