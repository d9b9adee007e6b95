package store

import (
	"context"
	"sync"
	"time"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

// MemoryStore is an in-memory pet store for development/testing.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]pet.Pet
	updated map[string]time.Time

	// FailIDs makes specific upserts fail, for partial-failure tests.
	FailIDs map[string]error
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]pet.Pet),
		updated: make(map[string]time.Time),
	}
}

// Exists reports whether the id is stored.
func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

// Upsert stores the record, reporting whether it was newly created.
func (s *MemoryStore) Upsert(_ context.Context, p pet.Pet) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.FailIDs[p.ID]; ok {
		return false, err
	}
	_, exists := s.records[p.ID]
	s.records[p.ID] = p
	s.updated[p.ID] = time.Now().UTC()
	return !exists, nil
}

// SaveMany upserts a batch with partial-failure semantics.
func (s *MemoryStore) SaveMany(ctx context.Context, pets []pet.Pet) pet.SaveReport {
	return saveMany(ctx, s, pets)
}

// Get returns a stored record, for test assertions.
func (s *MemoryStore) Get(id string) (pet.Pet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.records[id]
	return p, ok
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

