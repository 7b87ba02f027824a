// Package storage provides the backends a leafprefs.Manager persists tokens in.
// Every backend keeps one key -> token mapping per container and merges writes
// into it; none of them interprets the tokens.
package storage

import (
	"sort"

	"github.com/CreativeUnicorns/leafprefs"
)

var (
	_ leafprefs.Storage = (*FileStorage)(nil)
	_ leafprefs.Storage = (*MemoryStorage)(nil)
	_ leafprefs.Storage = (*SQLiteStorage)(nil)
	_ leafprefs.Storage = (*PostgresStorage)(nil)
	_ leafprefs.Storage = (*RedisStorage)(nil)
	_ leafprefs.Storage = (*EncryptedStorage)(nil)
	_ leafprefs.Storage = (*CachedStorage)(nil)
)

// sortedKeys returns the keys of values in ascending order so that multi-key
// writes hit the backend in a stable order.
func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyTokens(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
