package storage

import (
	"context"
	"sync"
	"time"

	"github.com/CreativeUnicorns/leafprefs"
)

// cacheItem is a container snapshot with an expiration time.
type cacheItem struct {
	values     map[string]string
	expiration time.Time
}

// CachedStorage keeps whole containers of a slower backend in memory for a TTL.
// Writes go through to the backend and drop the cached container. Writes made
// by other processes stay invisible until the entry expires.
type CachedStorage struct {
	inner leafprefs.Storage
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	items map[string]cacheItem
	// gens counts the writes per container; a load only caches if none happened meanwhile.
	gens map[string]uint64
}

// NewCachedStorage wraps inner. A ttl of zero or less keeps entries until the next write.
func NewCachedStorage(inner leafprefs.Storage, ttl time.Duration) *CachedStorage {
	return &CachedStorage{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheItem),
		gens:  make(map[string]uint64),
	}
}

func (s *CachedStorage) lookup(container string) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, exists := s.items[container]
	if !exists {
		return nil, false
	}
	if !it.expiration.IsZero() && s.now().After(it.expiration) {
		return nil, false
	}
	return it.values, true
}

// Get retrieves the token stored under key in container.
func (s *CachedStorage) Get(ctx context.Context, container, key string) (string, error) {
	values, err := s.LoadAll(ctx, container)
	if err != nil {
		return "", err
	}
	token, ok := values[key]
	if !ok {
		return "", leafprefs.ErrNotFound
	}
	return token, nil
}

// LoadAll serves container from the cache, loading it from the backend on a miss.
func (s *CachedStorage) LoadAll(ctx context.Context, container string) (map[string]string, error) {
	if values, ok := s.lookup(container); ok {
		return copyTokens(values), nil
	}

	s.mu.RLock()
	gen := s.gens[container]
	s.mu.RUnlock()

	values, err := s.inner.LoadAll(ctx, container)
	if err != nil {
		return nil, err
	}

	var expiration time.Time
	if s.ttl > 0 {
		expiration = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	if s.gens[container] == gen {
		s.items[container] = cacheItem{values: copyTokens(values), expiration: expiration}
	}
	s.mu.Unlock()

	return values, nil
}

// SetAll writes through and invalidates the cached container.
func (s *CachedStorage) SetAll(ctx context.Context, container string, values map[string]string) error {
	err := s.inner.SetAll(ctx, container, values)

	s.mu.Lock()
	s.gens[container]++
	delete(s.items, container)
	s.mu.Unlock()

	return err
}

// Purge drops every cached container, returning how many there were.
func (s *CachedStorage) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	s.items = make(map[string]cacheItem)
	return n
}

// Close clears the cache and closes the backend.
func (s *CachedStorage) Close() error {
	s.Purge()
	return s.inner.Close()
}
