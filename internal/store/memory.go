package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nvandessel/bucketsim/internal/fairness"
	"github.com/nvandessel/bucketsim/internal/simulation"
)

type memoryEntry struct {
	record     RunRecord
	members    []fairness.MemberResult
	partitions []fairness.PartitionResult
}

// InMemoryResultStore implements ResultStore for testing and for runs that
// should not touch disk.
type InMemoryResultStore struct {
	mu   sync.RWMutex
	runs map[string]memoryEntry
}

// NewInMemoryResultStore creates a new in-memory store.
func NewInMemoryResultStore() *InMemoryResultStore {
	return &InMemoryResultStore{runs: make(map[string]memoryEntry)}
}

// SaveRun stores run.
func (s *InMemoryResultStore) SaveRun(ctx context.Context, run *simulation.Run) error {
	rec, err := NewRunRecord(run)
	if err != nil {
		return fmt.Errorf("failed to flatten run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[rec.ID]; exists {
		return fmt.Errorf("run %s already stored", rec.ID)
	}
	s.runs[rec.ID] = memoryEntry{
		record:     rec,
		members:    append([]fairness.MemberResult(nil), run.Report.Members...),
		partitions: append([]fairness.PartitionResult(nil), run.Report.Partitions...),
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *InMemoryResultStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	rec := e.record
	return &rec, nil
}

// ListRuns returns run summaries, newest first.
func (s *InMemoryResultStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunRecord, 0, len(s.runs))
	for _, e := range s.runs {
		out = append(out, e.record.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemberResults returns the independence rows of run id.
func (s *InMemoryResultStore) MemberResults(ctx context.Context, id string) ([]fairness.MemberResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return append([]fairness.MemberResult(nil), e.members...), nil
}

// PartitionResults returns the uniformity rows of run id.
func (s *InMemoryResultStore) PartitionResults(ctx context.Context, id string) ([]fairness.PartitionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return append([]fairness.PartitionResult(nil), e.partitions...), nil
}

// DeleteRun removes a run.
func (s *InMemoryResultStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	delete(s.runs, id)
	return nil
}

// Close is a no-op.
func (s *InMemoryResultStore) Close() error {
	return nil
}

// Compile-time interface checks.
var (
	_ ResultStore = (*InMemoryResultStore)(nil)
	_ ResultStore = (*SQLiteResultStore)(nil)
)
