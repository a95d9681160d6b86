package cache

import (
	"context"
	"sync"

	"contentweaver/internal/core"
)

// MemoryStore keeps document sets in process memory.
//
// Documents are immutable, so stored slices are copied but documents are shared.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key][]*core.Document
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key][]*core.Document)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) ([]*core.Document, bool, error) {
	if err := key.Validate(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return core.CloneDocuments(docs), true, nil
}

func (s *MemoryStore) Put(_ context.Context, key Key, docs []*core.Document) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = core.CloneDocuments(docs)
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
