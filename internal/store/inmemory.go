package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gmarchetti/consultsim/internal/sim"
)

// InMemoryStore is a simple in-process run archive for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]RunRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]RunRecord)}
}

func (s *InMemoryStore) SaveRun(_ context.Context, record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.Turns = append([]sim.Turn(nil), record.Turns...)
	s.records[record.ID] = record
	return nil
}

func (s *InMemoryStore) GetRun(_ context.Context, id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return RunRecord{}, ErrRunNotFound
	}
	record.Turns = append([]sim.Turn(nil), record.Turns...)
	return record, nil
}

func (s *InMemoryStore) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunRecord, 0, len(s.records))
	for _, record := range s.records {
		record.Turns = nil
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
