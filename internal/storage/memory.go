package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Name returns the backend name
func (s *MemoryStore) Name() string { return "memory" }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// Read returns a copy of the document stored under key
func (s *MemoryStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Write replaces the document under key
func (s *MemoryStore) Write(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = append([]byte(nil), value...)
	return nil
}
