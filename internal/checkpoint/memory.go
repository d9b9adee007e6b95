package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

// MemoryStore is an in-memory checkpoint store for development/testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]pet.Checkpoint
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]pet.Checkpoint)}
}

func key(sourceID string, petType pet.Type) string {
	return sourceID + "/" + string(petType)
}

// Get returns the stored checkpoint or nil.
func (s *MemoryStore) Get(_ context.Context, sourceID string, petType pet.Type) (*pet.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.data[key(sourceID, petType)]
	if !ok {
		return nil, nil
	}
	out := clone(cp)
	return &out, nil
}

// Put upserts the checkpoint for its (source, type) key.
func (s *MemoryStore) Put(_ context.Context, cp pet.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.UpdatedAt = time.Now().UTC()
	s.data[key(cp.SourceID, cp.PetType)] = clone(cp)
	return nil
}

// List returns checkpoints matching the filters, ordered by key.
func (s *MemoryStore) List(_ context.Context, sourceID string, petType pet.Type) ([]pet.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pet.Checkpoint
	for _, cp := range s.data {
		if sourceID != "" && cp.SourceID != sourceID {
			continue
		}
		if petType != "" && cp.PetType != petType {
			continue
		}
		out = append(out, clone(cp))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].PetType < out[j].PetType
	})
	return out, nil
}

func clone(cp pet.Checkpoint) pet.Checkpoint {
	out := cp
	out.RecentItemIDs = append([]string(nil), cp.RecentItemIDs...)
	if cp.Metadata != nil {
		out.Metadata = make(map[string]string, len(cp.Metadata))
		for k, v := range cp.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
