package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema for the results database.
const schemaV1 = `
-- One row per validated run
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,

    -- Configuration
    members INTEGER NOT NULL,
    partitions INTEGER NOT NULL,
    skewed INTEGER NOT NULL DEFAULT 0,
    rounds INTEGER NOT NULL,
    seed TEXT NOT NULL,  -- uint64, stored as decimal text
    workers INTEGER DEFAULT 0,
    label_length INTEGER DEFAULT 0,
    record_history INTEGER DEFAULT 1,
    algorithm TEXT NOT NULL,
    alpha REAL NOT NULL,

    -- Verdicts
    independent INTEGER NOT NULL,
    uniform INTEGER NOT NULL,
    t_statistic REAL,  -- NULL when undefined
    t_pvalue REAL,
    member_rejection_rate REAL,
    partition_rejection_rate REAL,

    label_collisions INTEGER DEFAULT 0,
    duration_ns INTEGER DEFAULT 0,
    report TEXT  -- JSON
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

-- Partition weights and realized sizes
CREATE TABLE IF NOT EXISTS partitions (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    label TEXT NOT NULL,
    weight REAL NOT NULL,
    members INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, label)
);

-- Experiments in round order
CREATE TABLE IF NOT EXISTS experiments (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    label TEXT NOT NULL,
    PRIMARY KEY (run_id, seq),
    UNIQUE (run_id, label)
);

-- Per-partition bucket counts of each experiment
CREATE TABLE IF NOT EXISTS tallies (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    partition_label TEXT NOT NULL,
    control INTEGER NOT NULL,
    treatment INTEGER NOT NULL,
    PRIMARY KEY (run_id, seq, partition_label),
    FOREIGN KEY (run_id, seq) REFERENCES experiments(run_id, seq) ON DELETE CASCADE
);

-- Independence rows, one per member
CREATE TABLE IF NOT EXISTS member_results (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    ord INTEGER NOT NULL,
    identity TEXT NOT NULL,
    partition_label TEXT NOT NULL,
    control INTEGER NOT NULL,
    treatment INTEGER NOT NULL,
    delta INTEGER NOT NULL,
    signed_delta INTEGER NOT NULL,
    chi_square REAL,
    p_value REAL,
    PRIMARY KEY (run_id, ord),
    UNIQUE (run_id, identity)
);

-- Uniformity rows, one per (experiment, partition)
CREATE TABLE IF NOT EXISTS partition_results (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    experiment TEXT NOT NULL,
    partition_label TEXT NOT NULL,
    control INTEGER NOT NULL,
    treatment INTEGER NOT NULL,
    chi_square REAL,
    p_value REAL,
    PRIMARY KEY (run_id, seq, partition_label)
);

-- Schema version
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema initializes the database schema.
// It creates all tables and applies migrations as needed.
// Runs integrity validation before migrations on existing databases.
func InitSchema(ctx context.Context, db *sql.DB) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// Schema version table doesn't exist yet, create fresh schema
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if err := ValidateIntegrity(ctx, db); err != nil {
		return fmt.Errorf("database integrity check failed: %w", err)
	}

	if currentVersion > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, SchemaVersion)
	}
	return nil
}

// getSchemaVersion returns the current schema version from the database.
// Returns 0 and an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// createSchema creates the initial database schema.
func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// ValidateIntegrity runs PRAGMA integrity_check and PRAGMA
// foreign_key_check. Returns an error if any issues are found.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("failed to scan integrity_check result: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity_check failed: %s", result)
		}
	}

	fkRows, err := db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("failed to run foreign_key_check: %w", err)
	}
	defer fkRows.Close()

	var fkErrors []string
	for fkRows.Next() {
		var table, rowid, parent, fkid sql.NullString
		if err := fkRows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("failed to scan foreign_key_check result: %w", err)
		}
		fkErrors = append(fkErrors, fmt.Sprintf("table=%s rowid=%s parent=%s fkid=%s", table.String, rowid.String, parent.String, fkid.String))
	}

	if len(fkErrors) > 0 {
		return fmt.Errorf("foreign_key_check failed: %v", fkErrors)
	}

	return nil
}
