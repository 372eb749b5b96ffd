package storage

import (
	"context"
	"sync"

	"branchwatch/internal/branch"
)

const memoryHistoryMax = 500

type memoryStore struct {
	mu       sync.Mutex
	branches map[string]branch.State
	changes  []ChangeRecord
	closed   bool
}

// NewMemory returns a store that lives as long as the process.
func NewMemory() Store {
	return &memoryStore{branches: map[string]branch.State{}}
}

func (s *memoryStore) GetBranch(_ context.Context, name string) (branch.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return branch.State{}, false, ErrClosed
	}
	st, ok := s.branches[name]
	return st, ok, nil
}

func (s *memoryStore) PutBranch(_ context.Context, name string, st branch.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.branches[name] = st
	return nil
}

func (s *memoryStore) ListBranches(_ context.Context) (map[string]branch.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[string]branch.State, len(s.branches))
	for k, v := range s.branches {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) AppendChange(_ context.Context, rec ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.changes = append(s.changes, rec)
	if len(s.changes) > memoryHistoryMax {
		s.changes = s.changes[len(s.changes)-memoryHistoryMax:]
	}
	return nil
}

func (s *memoryStore) RecentChanges(_ context.Context, limit int) ([]ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return newestFirst(s.changes, limit), nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// newestFirst copies the last limit records of recs in reverse order.
func newestFirst(recs []ChangeRecord, limit int) []ChangeRecord {
	if limit <= 0 || limit > len(recs) {
		limit = len(recs)
	}
	out := make([]ChangeRecord, 0, limit)
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out
}
