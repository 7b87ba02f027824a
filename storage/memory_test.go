package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CreativeUnicorns/leafprefs"
)

func TestMemoryStorage_Contract(t *testing.T) {
	runStorageContract(t, func(t *testing.T) leafprefs.Storage {
		return NewMemoryStorage()
	})
}

func TestMemoryStorage_LoadAllReturnsCopy(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, s.SetAll(ctx, "c", map[string]string{"k": "bool 1"}))

	values, err := s.LoadAll(ctx, "c")
	require.NoError(t, err)
	values["k"] = "bool 0"

	token, err := s.Get(ctx, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, "bool 1", token, "callers cannot mutate stored state")
}

func TestMemoryStorage_Containers(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, s.SetAll(ctx, "b", map[string]string{"k": "bool 1"}))
	require.NoError(t, s.SetAll(ctx, "a", map[string]string{"k": "bool 1"}))

	assert.Equal(t, []string{"a", "b"}, s.Containers())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
