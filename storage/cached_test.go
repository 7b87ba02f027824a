package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CreativeUnicorns/leafprefs"
)

func TestCachedStorageContract(t *testing.T) {
	runStorageContract(t, func(t *testing.T) leafprefs.Storage {
		return NewCachedStorage(NewMemoryStorage(), time.Minute)
	})
}

func TestCachedStorageServesFromCache(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStorage()
	require.NoError(t, backend.SetAll(ctx, "c", map[string]string{"theme": "stringdark"}))

	s := NewCachedStorage(backend, time.Minute)
	token, err := s.Get(ctx, "c", "theme")
	require.NoError(t, err)
	assert.Equal(t, "stringdark", token)

	// a write that bypasses the cache stays invisible
	require.NoError(t, backend.SetAll(ctx, "c", map[string]string{"theme": "stringlight"}))
	token, err = s.Get(ctx, "c", "theme")
	require.NoError(t, err)
	assert.Equal(t, "stringdark", token)

	// a write through the cache invalidates it
	require.NoError(t, s.SetAll(ctx, "c", map[string]string{"volume": "numbe1"}))
	values, err := s.LoadAll(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"theme": "stringlight", "volume": "numbe1"}, values)
}

func TestCachedStorageExpires(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStorage()
	require.NoError(t, backend.SetAll(ctx, "c", map[string]string{"theme": "stringdark"}))

	now := time.Unix(1000, 0)
	s := NewCachedStorage(backend, time.Second)
	s.now = func() time.Time { return now }

	_, err := s.LoadAll(ctx, "c")
	require.NoError(t, err)
	require.NoError(t, backend.SetAll(ctx, "c", map[string]string{"theme": "stringlight"}))

	now = now.Add(500 * time.Millisecond)
	token, _ := s.Get(ctx, "c", "theme")
	assert.Equal(t, "stringdark", token)

	now = now.Add(time.Second)
	token, _ = s.Get(ctx, "c", "theme")
	assert.Equal(t, "stringlight", token)
}

func TestCachedStorageReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewCachedStorage(NewMemoryStorage(), 0)
	require.NoError(t, s.SetAll(ctx, "c", map[string]string{"theme": "stringdark"}))

	values, err := s.LoadAll(ctx, "c")
	require.NoError(t, err)
	values["theme"] = "mutated"

	token, err := s.Get(ctx, "c", "theme")
	require.NoError(t, err)
	assert.Equal(t, "stringdark", token)
}

func TestCachedStoragePurgeAndClose(t *testing.T) {
	ctx := context.Background()
	s := NewCachedStorage(NewMemoryStorage(), 0)
	_, _ = s.LoadAll(ctx, "a")
	_, _ = s.LoadAll(ctx, "b")

	assert.Equal(t, 2, s.Purge())
	assert.Zero(t, s.Purge())
	require.NoError(t, s.Close())
}

// pausingStorage holds LoadAll after reading the backend until release is closed.
type pausingStorage struct {
	leafprefs.Storage
	loaded  chan struct{}
	release chan struct{}
}

func (s *pausingStorage) LoadAll(ctx context.Context, container string) (map[string]string, error) {
	values, err := s.Storage.LoadAll(ctx, container)
	if s.loaded != nil {
		close(s.loaded)
		s.loaded = nil
		<-s.release
	}
	return values, err
}

func TestCachedStorageDropsLoadRacingWrite(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStorage()
	require.NoError(t, backend.SetAll(ctx, "c", map[string]string{"enabled": "bool 0"}))

	loaded := make(chan struct{})
	release := make(chan struct{})
	s := NewCachedStorage(&pausingStorage{Storage: backend, loaded: loaded, release: release}, 0)

	stale := make(chan string, 1)
	go func() {
		values, _ := s.LoadAll(ctx, "c")
		stale <- values["enabled"]
	}()

	<-loaded
	require.NoError(t, s.SetAll(ctx, "c", map[string]string{"enabled": "bool 1"}))
	close(release)
	assert.Equal(t, "bool 0", <-stale)

	token, err := s.Get(ctx, "c", "enabled")
	require.NoError(t, err)
	assert.Equal(t, "bool 1", token)
}
