package storage

import (
	"context"
	"sync"

	"github.com/CreativeUnicorns/leafprefs"
)

// MemoryStorage implements the Storage interface using an in-memory map.
// This is useful for testing or for a host that does not need persistence.
type MemoryStorage struct {
	mu         sync.RWMutex
	containers map[string]map[string]string // container -> key -> token
}

// NewMemoryStorage creates a new instance of MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		containers: make(map[string]map[string]string),
	}
}

// Get retrieves the token stored under key in container.
// It returns leafprefs.ErrNotFound if there is none.
func (s *MemoryStorage) Get(_ context.Context, container, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.containers[container][key]
	if !ok {
		return "", leafprefs.ErrNotFound
	}
	return token, nil
}

// SetAll merges values into container.
func (s *MemoryStorage) SetAll(_ context.Context, container string, values map[string]string) error {
	if err := leafprefs.ValidateContainer(container); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.containers[container]
	if !ok {
		stored = make(map[string]string, len(values))
		s.containers[container] = stored
	}
	for k, v := range values {
		stored[k] = v
	}
	return nil
}

// LoadAll returns a copy of container, or nil when it is empty.
func (s *MemoryStorage) LoadAll(_ context.Context, container string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTokens(s.containers[container]), nil
}

// Containers lists the containers holding data.
func (s *MemoryStorage) Containers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make(map[string]string, len(s.containers))
	for name := range s.containers {
		names[name] = name
	}
	return sortedKeys(names)
}

// Close is a no-op for MemoryStorage.
func (s *MemoryStorage) Close() error {
	return nil
}
