package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/bucketsim/internal/fairness"
	"github.com/nvandessel/bucketsim/internal/models"
	"github.com/nvandessel/bucketsim/internal/simulation"
	_ "modernc.org/sqlite" // SQLite driver
)

// timeFormat has fixed-width fractional seconds so created_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteResultStore implements ResultStore using SQLite for persistence.
type SQLiteResultStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteResultStore opens (creating if needed) the results database under
// the data directory of projectRoot.
func NewSQLiteResultStore(projectRoot string) (*SQLiteResultStore, error) {
	dataDir := DataDir(projectRoot)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return OpenSQLiteResultStore(ResultsPath(projectRoot))
}

// OpenSQLiteResultStore opens the results database at dbPath.
func OpenSQLiteResultStore(dbPath string) (*SQLiteResultStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteResultStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteResultStore) Path() string {
	return s.dbPath
}

// SaveRun stores run, its partitions, experiments, tallies and validation
// rows in one transaction.
func (s *SQLiteResultStore) SaveRun(ctx context.Context, run *simulation.Run) error {
	rec, err := NewRunRecord(run)
	if err != nil {
		return fmt.Errorf("failed to flatten run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, members, partitions, skewed, rounds, seed, workers,
			label_length, record_history, algorithm, alpha,
			independent, uniform, t_statistic, t_pvalue,
			member_rejection_rate, partition_rejection_rate,
			label_collisions, duration_ns, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.Format(timeFormat), rec.Members, rec.Partitions,
		boolToInt(rec.Skewed), rec.Rounds, strconv.FormatUint(rec.Seed, 10), rec.Workers,
		rec.LabelLength, boolToInt(rec.RecordHistory), rec.Algorithm, rec.Alpha,
		boolToInt(rec.Independent), boolToInt(rec.Uniform), nullFloat(rec.TStatistic), nullFloat(rec.TPValue),
		nullFloat(rec.MemberRejectionRate), nullFloat(rec.PartitionRejectionRate),
		rec.LabelCollisions, int64(rec.Duration), string(rec.Report),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, p := range rec.Weights {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO partitions (run_id, label, weight, members) VALUES (?, ?, ?, ?)`,
			rec.ID, p.Label, p.Weight, p.Members); err != nil {
			return fmt.Errorf("failed to insert partition %s: %w", p.Label, err)
		}
	}

	if err := insertExperiments(ctx, tx, rec); err != nil {
		return err
	}
	if err := insertMemberResults(ctx, tx, rec.ID, run.Report.Members); err != nil {
		return err
	}
	if err := insertPartitionResults(ctx, tx, rec.ID, run.Report.Partitions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func insertExperiments(ctx context.Context, tx *sql.Tx, rec RunRecord) error {
	expStmt, err := tx.PrepareContext(ctx, `INSERT INTO experiments (run_id, seq, label) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare experiment insert: %w", err)
	}
	defer expStmt.Close()

	tallyStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tallies (run_id, seq, partition_label, control, treatment) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare tally insert: %w", err)
	}
	defer tallyStmt.Close()

	for _, e := range rec.Experiments {
		if _, err := expStmt.ExecContext(ctx, rec.ID, e.Seq, e.Label); err != nil {
			return fmt.Errorf("failed to insert experiment %s: %w", e.Label, err)
		}
		for label, t := range e.Tallies {
			if _, err := tallyStmt.ExecContext(ctx, rec.ID, e.Seq, label, t.Control, t.Treatment); err != nil {
				return fmt.Errorf("failed to insert tally %s/%s: %w", e.Label, label, err)
			}
		}
	}
	return nil
}

func insertMemberResults(ctx context.Context, tx *sql.Tx, runID string, rows []fairness.MemberResult) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO member_results (
			run_id, ord, identity, partition_label, control, treatment,
			delta, signed_delta, chi_square, p_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare member result insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, i, r.Identity, r.Partition, r.Control, r.Treatment,
			r.Delta, r.SignedDelta, nullFloat(r.ChiSquare), nullFloat(r.PValue)); err != nil {
			return fmt.Errorf("failed to insert member result %s: %w", r.Identity, err)
		}
	}
	return nil
}

func insertPartitionResults(ctx context.Context, tx *sql.Tx, runID string, rows []fairness.PartitionResult) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO partition_results (
			run_id, seq, experiment, partition_label, control, treatment, chi_square, p_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare partition result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, r.Seq, r.Experiment, r.Partition, r.Control, r.Treatment,
			nullFloat(r.ChiSquare), nullFloat(r.PValue)); err != nil {
			return fmt.Errorf("failed to insert partition result %s/%s: %w", r.Experiment, r.Partition, err)
		}
	}
	return nil
}

const runColumns = `
	id, created_at, members, partitions, skewed, rounds, seed, workers,
	label_length, record_history, algorithm, alpha,
	independent, uniform, t_statistic, t_pvalue,
	member_rejection_rate, partition_rejection_rate,
	label_collisions, duration_ns, report`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		rec                             RunRecord
		createdAt, seed                 string
		skewed, history, indep, uniform int
		tStat, tP, memberRate, partRate sql.NullFloat64
		durationNS                      int64
		report                          sql.NullString
	)
	err := row.Scan(
		&rec.ID, &createdAt, &rec.Members, &rec.Partitions, &skewed, &rec.Rounds, &seed, &rec.Workers,
		&rec.LabelLength, &history, &rec.Algorithm, &rec.Alpha,
		&indep, &uniform, &tStat, &tP,
		&memberRate, &partRate,
		&rec.LabelCollisions, &durationNS, &report,
	)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	rec.Seed, err = strconv.ParseUint(seed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed %q: %w", seed, err)
	}
	rec.Skewed = skewed != 0
	rec.RecordHistory = history != 0
	rec.Independent = indep != 0
	rec.Uniform = uniform != 0
	rec.TStatistic = floatOrNaN(tStat)
	rec.TPValue = floatOrNaN(tP)
	rec.MemberRejectionRate = floatOrNaN(memberRate)
	rec.PartitionRejectionRate = floatOrNaN(partRate)
	rec.Duration = time.Duration(durationNS)
	if report.Valid {
		rec.Report = []byte(report.String)
	}
	return &rec, nil
}

// GetRun retrieves a run with its partitions and experiments.
func (s *SQLiteResultStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	rec.Weights, err = s.partitionsUnlocked(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Experiments, err = s.experimentsUnlocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteResultStore) partitionsUnlocked(ctx context.Context, id string) ([]PartitionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, weight, members FROM partitions WHERE run_id = ? ORDER BY CAST(label AS INTEGER), label`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query partitions: %w", err)
	}
	defer rows.Close()

	var out []PartitionRecord
	for rows.Next() {
		var p PartitionRecord
		if err := rows.Scan(&p.Label, &p.Weight, &p.Members); err != nil {
			return nil, fmt.Errorf("failed to scan partition: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteResultStore) experimentsUnlocked(ctx context.Context, id string) ([]ExperimentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.seq, e.label, t.partition_label, t.control, t.treatment
		FROM experiments e
		LEFT JOIN tallies t ON t.run_id = e.run_id AND t.seq = e.seq
		WHERE e.run_id = ?
		ORDER BY e.seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query experiments: %w", err)
	}
	defer rows.Close()

	var out []ExperimentRecord
	for rows.Next() {
		var (
			seq                int
			label              string
			partition          sql.NullString
			control, treatment sql.NullInt64
		)
		if err := rows.Scan(&seq, &label, &partition, &control, &treatment); err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Seq != seq {
			out = append(out, ExperimentRecord{Seq: seq, Label: label, Tallies: make(map[string]models.Tally)})
		}
		if partition.Valid {
			out[len(out)-1].Tallies[partition.String] = models.Tally{
				Control:   int(control.Int64),
				Treatment: int(treatment.Int64),
			}
		}
	}
	return out, rows.Err()
}

// ListRuns returns run summaries, newest first.
func (s *SQLiteResultStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// MemberResults returns the stored independence rows of run id.
func (s *SQLiteResultStore) MemberResults(ctx context.Context, id string) ([]fairness.MemberResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRunUnlocked(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, partition_label, control, treatment, delta, signed_delta, chi_square, p_value
		FROM member_results WHERE run_id = ? ORDER BY ord`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query member results: %w", err)
	}
	defer rows.Close()

	var out []fairness.MemberResult
	for rows.Next() {
		var (
			r         fairness.MemberResult
			chi, pval sql.NullFloat64
		)
		if err := rows.Scan(&r.Identity, &r.Partition, &r.Control, &r.Treatment,
			&r.Delta, &r.SignedDelta, &chi, &pval); err != nil {
			return nil, fmt.Errorf("failed to scan member result: %w", err)
		}
		r.ChiSquare = floatOrNaN(chi)
		r.PValue = floatOrNaN(pval)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PartitionResults returns the stored uniformity rows of run id.
func (s *SQLiteResultStore) PartitionResults(ctx context.Context, id string) ([]fairness.PartitionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRunUnlocked(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, experiment, partition_label, control, treatment, chi_square, p_value
		FROM partition_results WHERE run_id = ?
		ORDER BY seq, CAST(partition_label AS INTEGER), partition_label`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query partition results: %w", err)
	}
	defer rows.Close()

	var out []fairness.PartitionResult
	for rows.Next() {
		var (
			r         fairness.PartitionResult
			chi, pval sql.NullFloat64
		)
		if err := rows.Scan(&r.Seq, &r.Experiment, &r.Partition, &r.Control, &r.Treatment, &chi, &pval); err != nil {
			return nil, fmt.Errorf("failed to scan partition result: %w", err)
		}
		r.ChiSquare = floatOrNaN(chi)
		r.PValue = floatOrNaN(pval)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run. Dependent rows go with it via ON DELETE CASCADE.
func (s *SQLiteResultStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func (s *SQLiteResultStore) requireRunUnlocked(ctx context.Context, id string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up run: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullFloat stores NaN as NULL. SQLite has no NaN.
func nullFloat(f float64) sql.NullFloat64 {
	if math.IsNaN(f) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func floatOrNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}
