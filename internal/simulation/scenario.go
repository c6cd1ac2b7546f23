package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/bucketsim/internal/assign"
	"github.com/nvandessel/bucketsim/internal/config"
	"github.com/nvandessel/bucketsim/internal/fairness"
	"github.com/nvandessel/bucketsim/internal/logging"
	"github.com/nvandessel/bucketsim/internal/models"
	"github.com/nvandessel/bucketsim/internal/partition"
)

// labelStream offsets the label RNG from the population RNG so the two
// sequences are independent for the same seed.
const labelStream = 0x9e3779b97f4a7c15

// Run is one completed simulation: configuration, population, experiment
// ledger and validation report. It is not modified after Execute returns.
type Run struct {
	ID              string
	CreatedAt       time.Time
	Config          config.SimulationConfig
	Seed            uint64
	Algorithm       assign.Algorithm
	Weights         *partition.Weights
	Population      *models.Population
	Ledger          *models.Ledger
	Report          *fairness.Report
	LabelCollisions int
	Duration        time.Duration
}

// Environment carries the ambient collaborators of Execute.
type Environment struct {
	Logger *slog.Logger
	Rounds *logging.RoundLogger
}

// Execute runs the whole lifecycle for cfg: weights, optional skew,
// population, rounds, validation.
func Execute(ctx context.Context, cfg *config.Config, env Environment) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := env.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	sc := cfg.Simulation

	seed := sc.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	run := &Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Config:    sc,
		Seed:      seed,
	}
	start := time.Now()

	weights, err := partition.UniformWeights(sc.Partitions)
	if err != nil {
		return nil, err
	}
	if sc.Skewed {
		if err := weights.Adjust(); err != nil {
			return nil, err
		}
	}
	run.Weights = weights

	popRNG := rand.New(rand.NewPCG(seed, 0))
	pop, err := partition.GeneratePopulation(weights, sc.Members, popRNG, sc.RecordHistory)
	if err != nil {
		return nil, fmt.Errorf("generating population: %w", err)
	}
	run.Population = pop
	logger.Info("population generated",
		"run", run.ID,
		"members", pop.Len(),
		"partitions", weights.Len(),
		"skewed", sc.Skewed,
		"seed", seed)

	assigner, err := assign.New(assign.Algorithm(cfg.Hash.Algorithm))
	if err != nil {
		return nil, err
	}
	run.Algorithm = assigner.Algorithm()

	labels := assign.NewLabelGenerator(rand.New(rand.NewPCG(seed, labelStream)), sc.LabelLength)
	sim := NewSimulator(assigner, labels,
		WithWorkers(cfg.EffectiveWorkers()),
		WithLogger(logger),
		WithRoundLogger(env.Rounds),
		WithRunID(run.ID))

	ledger, err := sim.Run(ctx, pop, sc.Rounds)
	if err != nil {
		return nil, fmt.Errorf("simulating: %w", err)
	}
	run.Ledger = ledger
	run.LabelCollisions = labels.Collisions()

	validator, err := fairness.NewValidator(cfg.Validation.Alpha)
	if err != nil {
		return nil, err
	}
	report, err := validator.Validate(pop, ledger)
	if err != nil {
		return nil, err
	}
	run.Report = report
	run.Duration = time.Since(start)

	logger.Info("run validated",
		"run", run.ID,
		"rounds", ledger.Len(),
		"independent", report.Independence.Independent,
		"t_pvalue", report.Independence.TTest.PValue,
		"uniform", report.Uniformity.Uniform,
		"partition_rejection_rate", report.Uniformity.RejectionRate,
		"elapsed", run.Duration)

	return run, nil
}

// ControlFraction returns the share of control assignments in experiment
// seq (1-based), across all partitions.
func (r *Run) ControlFraction(seq int) (float64, error) {
	exps := r.Ledger.Experiments()
	if seq < 1 || seq > len(exps) {
		return 0, fmt.Errorf("experiment %d out of range [1, %d]", seq, len(exps))
	}
	t := exps[seq-1].Total()
	if t.Total() == 0 {
		return 0, nil
	}
	return float64(t.Control) / float64(t.Total()), nil
}
