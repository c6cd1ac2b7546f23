// Package export writes simulation results as CSV tables and as compressed,
// checksummed snapshots that can be replayed later.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/nvandessel/bucketsim/internal/fairness"
)

// MemberHeader is the column layout of the member CSV.
var MemberHeader = []string{"identity", "partition", "control", "treatment", "delta", "p_value", "chi_square"}

// PartitionHeader is the column layout of the partition CSV.
var PartitionHeader = []string{"experiment", "seq", "partition", "control", "treatment", "p_value", "chi_square"}

// CSVConfig specifies options for CSV export.
type CSVConfig struct {
	// IncludeHeader writes column headers as the first row.
	// Default: true
	IncludeHeader bool

	// Precision is the number of decimal places for floating-point values.
	// -1 uses the shortest exact representation.
	// Default: -1
	Precision int

	// NAString represents undefined statistics.
	// Default: "NA" (compatible with R and pandas)
	NAString string
}

// DefaultCSVConfig returns a CSVConfig with sensible defaults.
func DefaultCSVConfig() *CSVConfig {
	return &CSVConfig{
		IncludeHeader: true,
		Precision:     -1,
		NAString:      "NA",
	}
}

// WriteMemberCSV writes one row per member independence result.
// If config is nil, DefaultCSVConfig() is used.
func WriteMemberCSV(w io.Writer, rows []fairness.MemberResult, config *CSVConfig) (int, error) {
	if config == nil {
		config = DefaultCSVConfig()
	}
	cw := csv.NewWriter(w)
	if config.IncludeHeader {
		if err := cw.Write(MemberHeader); err != nil {
			return 0, fmt.Errorf("failed to write CSV header: %w", err)
		}
	}
	for i, r := range rows {
		record := []string{
			r.Identity,
			r.Partition,
			strconv.Itoa(r.Control),
			strconv.Itoa(r.Treatment),
			strconv.Itoa(r.Delta),
			config.formatFloat(r.PValue),
			config.formatFloat(r.ChiSquare),
		}
		if err := cw.Write(record); err != nil {
			return i, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	return len(rows), flush(cw)
}

// WritePartitionCSV writes one row per (experiment, partition) uniformity
// result.
func WritePartitionCSV(w io.Writer, rows []fairness.PartitionResult, config *CSVConfig) (int, error) {
	if config == nil {
		config = DefaultCSVConfig()
	}
	cw := csv.NewWriter(w)
	if config.IncludeHeader {
		if err := cw.Write(PartitionHeader); err != nil {
			return 0, fmt.Errorf("failed to write CSV header: %w", err)
		}
	}
	for i, r := range rows {
		record := []string{
			r.Experiment,
			strconv.Itoa(r.Seq),
			r.Partition,
			strconv.Itoa(r.Control),
			strconv.Itoa(r.Treatment),
			config.formatFloat(r.PValue),
			config.formatFloat(r.ChiSquare),
		}
		if err := cw.Write(record); err != nil {
			return i, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	return len(rows), flush(cw)
}

func flush(cw *csv.Writer) error {
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV writer: %w", err)
	}
	return nil
}

func (c *CSVConfig) formatFloat(f float64) string {
	if math.IsNaN(f) {
		return c.NAString
	}
	return strconv.FormatFloat(f, 'f', c.Precision, 64)
}
