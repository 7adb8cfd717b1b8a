package drafts

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	savedAt time.Time
}

// MemoryStore keeps drafts in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) PutDraft(_ context.Context, key string, data []byte, savedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{data: append([]byte(nil), data...), savedAt: savedAt}
	return nil
}

func (s *MemoryStore) GetDraft(_ context.Context, key string) ([]byte, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}
	return append([]byte(nil), e.data...), e.savedAt, nil
}

func (s *MemoryStore) DeleteDraft(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) PurgeDrafts(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.savedAt.Before(olderThan) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}
