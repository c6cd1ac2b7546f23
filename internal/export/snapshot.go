package export

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/bucketsim/internal/config"
	"github.com/nvandessel/bucketsim/internal/models"
	"github.com/nvandessel/bucketsim/internal/partition"
	"github.com/nvandessel/bucketsim/internal/simulation"
)

// FormatVersion is the snapshot format written by WriteSnapshot.
const FormatVersion = 1

// MaxDecompressedSize is the maximum allowed size of a decompressed snapshot body (512MB).
const MaxDecompressedSize = 512 * 1024 * 1024

// Header is the plain-text first line of a snapshot file.
type Header struct {
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	Checksum        string    `json:"checksum"`
	RunID           string    `json:"run_id"`
	Algorithm       string    `json:"algorithm"`
	MemberCount     int       `json:"member_count"`
	ExperimentCount int       `json:"experiment_count"`
	HistoryRecorded bool      `json:"history_recorded"`
	Compressed      bool      `json:"compressed"`
}

// Snapshot is everything needed to replay a run's assignments.
type Snapshot struct {
	RunID       string                  `json:"run_id"`
	CreatedAt   time.Time               `json:"created_at"`
	Seed        uint64                  `json:"seed"`
	Algorithm   string                  `json:"algorithm"`
	Config      config.SimulationConfig `json:"config"`
	Weights     []partition.Partition   `json:"weights"`
	Experiments []*models.Experiment    `json:"experiments"`
	Members     []models.Member         `json:"members"`
	Report      json.RawMessage         `json:"report,omitempty"`
}

// NewSnapshot captures a validated run.
func NewSnapshot(run *simulation.Run) (*Snapshot, error) {
	if run.Population == nil || run.Ledger == nil {
		return nil, fmt.Errorf("run %s has no population or ledger", run.ID)
	}
	s := &Snapshot{
		RunID:       run.ID,
		CreatedAt:   run.CreatedAt,
		Seed:        run.Seed,
		Algorithm:   string(run.Algorithm),
		Config:      run.Config,
		Experiments: run.Ledger.Experiments(),
		Members:     run.Population.Members(),
	}
	if run.Weights != nil {
		s.Weights = run.Weights.Partitions()
	}
	if run.Report != nil {
		report, err := json.Marshal(run.Report)
		if err != nil {
			return nil, fmt.Errorf("marshaling report: %w", err)
		}
		s.Report = report
	}
	return s, nil
}

// HistoryRecorded reports whether members carry per-experiment assignments.
func (s *Snapshot) HistoryRecorded() bool {
	return len(s.Members) > 0 && s.Members[0].Assignments != nil
}

// WriteSnapshot writes s as a header line followed by the gzip-compressed
// JSON body. The header checksum covers the uncompressed body.
func WriteSnapshot(path string, s *Snapshot) (*Header, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(body); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	header := &Header{
		Version:         FormatVersion,
		CreatedAt:       time.Now().UTC(),
		Checksum:        checksum(body),
		RunID:           s.RunID,
		Algorithm:       s.Algorithm,
		MemberCount:     len(s.Members),
		ExperimentCount: len(s.Experiments),
		HistoryRecorded: s.HistoryRecorded(),
		Compressed:      true,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(headerBytes, '\n')); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(compressed.Bytes()); err != nil {
		return nil, fmt.Errorf("writing compressed body: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing file: %w", err)
	}
	return header, nil
}

// ReadSnapshot reads a snapshot file, decompresses the body and verifies its
// checksum.
func ReadSnapshot(path string) (*Snapshot, *Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := readHeader(reader)
	if err != nil {
		return nil, nil, err
	}

	gzr, err := gzip.NewReader(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	body, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing body: %w", err)
	}
	if int64(len(body)) > MaxDecompressedSize {
		return nil, nil, fmt.Errorf("decompressed body exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	if actual := checksum(body); actual != header.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}

	var s Snapshot
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return &s, header, nil
}

// ReadHeader reads only the header line of a snapshot file.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f))
}

func readHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d (want %d)", header.Version, FormatVersion)
	}
	return &header, nil
}

// DefaultSnapshotPath returns a timestamped snapshot path in dir.
func DefaultSnapshotPath(dir, runID string, now time.Time) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(dir, fmt.Sprintf("snapshot-%s-%s.json.gz", now.UTC().Format("20060102-150405"), short))
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}
