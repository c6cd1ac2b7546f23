package mcp

import (
	"time"

	"github.com/nvandessel/bucketsim/internal/partition"
)

// RunInput defines the input for the bucketsim_run tool. Zero values fall
// back to the server's configuration.
type RunInput struct {
	Members    int     `json:"members,omitempty" jsonschema:"Population size (default from config)"`
	Partitions int     `json:"partitions,omitempty" jsonschema:"Number of weighted partitions (default from config)"`
	Skewed     bool    `json:"skewed,omitempty" jsonschema:"Skew the last two partition weights"`
	Rounds     int     `json:"rounds,omitempty" jsonschema:"Number of experiments to simulate (default from config)"`
	Seed       uint64  `json:"seed,omitempty" jsonschema:"Seed for population and label generation; 0 picks one"`
	Alpha      float64 `json:"alpha,omitempty" jsonschema:"Significance level in (0, 1) (default 0.05)"`
	Hash       string  `json:"hash,omitempty" jsonschema:"Assignment digest: md5 or sha256"`
	Save       bool    `json:"save,omitempty" jsonschema:"Store the run in the results database"`
	Snapshot   string  `json:"snapshot,omitempty" jsonschema:"Write a replayable snapshot; relative names land in .bucketsim/snapshots"`
}

// RunOutput defines the output for the bucketsim_run tool.
type RunOutput struct {
	RunID       string                `json:"run_id" jsonschema:"ID of the run"`
	Members     int                   `json:"members"`
	Partitions  int                   `json:"partitions"`
	Rounds      int                   `json:"rounds"`
	Seed        uint64                `json:"seed" jsonschema:"Seed that reproduces this run"`
	Algorithm   string                `json:"algorithm"`
	Weights     []partition.Partition `json:"weights" jsonschema:"Partition weights used for the population"`
	Sizes       map[string]int        `json:"sizes" jsonschema:"Realized members per partition"`
	Independent bool                  `json:"independent" jsonschema:"Whether member assignments look independent across experiments"`
	Uniform     bool                  `json:"uniform" jsonschema:"Whether each partition splits close to 50/50"`
	Passed      bool                  `json:"passed"`

	TStatistic             *float64 `json:"t_statistic,omitempty" jsonschema:"One-sample t statistic of normalized signed deltas"`
	TPValue                *float64 `json:"t_pvalue,omitempty" jsonschema:"p-value of the t-test; low values mean correlated assignments"`
	MemberRejectionRate    float64  `json:"member_rejection_rate" jsonschema:"Share of members whose split is rejected at alpha"`
	PartitionRejectionRate float64  `json:"partition_rejection_rate" jsonschema:"Share of partition tallies rejected at alpha"`

	Saved    bool   `json:"saved"`
	Snapshot string `json:"snapshot,omitempty" jsonschema:"Path of the written snapshot"`
	Message  string `json:"message" jsonschema:"Human-readable summary"`
}

// RunsInput defines the input for the bucketsim_runs tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return (default 20)"`
}

// RunsOutput defines the output for the bucketsim_runs tool.
type RunsOutput struct {
	Runs  []RunListItem `json:"runs"`
	Count int           `json:"count"`
}

// RunListItem provides a list view of a stored run.
type RunListItem struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Members     int       `json:"members"`
	Partitions  int       `json:"partitions"`
	Skewed      bool      `json:"skewed"`
	Rounds      int       `json:"rounds"`
	Algorithm   string    `json:"algorithm"`
	Independent bool      `json:"independent"`
	Uniform     bool      `json:"uniform"`
}
