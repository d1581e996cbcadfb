package writer

import (
	"context"
	"sync"

	"github.com/ehutt/rent-radar/models"
)

// MemoryStore is an in-process ViolationStore used when no database is
// configured and in tests. Deduplication uses the same natural key as the
// persistent store.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]models.Violation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]models.Violation)}
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, v models.Violation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := v.Key()
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	s.rows[key] = v
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }

// All returns the stored violations in no particular order.
func (s *MemoryStore) All() []models.Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Violation, 0, len(s.rows))
	for _, v := range s.rows {
		out = append(out, v)
	}
	return out
}
