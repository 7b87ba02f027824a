package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CreativeUnicorns/leafprefs"
)

// DefaultRedisPrefix namespaces container hashes.
const DefaultRedisPrefix = "leafprefs:"

// RedisClient is the subset of *redis.Client used by RedisStorage.
type RedisClient interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Close() error
}

// RedisStorage keeps each container in one Redis hash, field = key, value = token.
type RedisStorage struct {
	client RedisClient
	prefix string
}

// NewRedisStorage connects to addr and checks the connection.
func NewRedisStorage(addr, password string, db int) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStorageWithClient(client, DefaultRedisPrefix), nil
}

// NewRedisStorageWithClient wraps an existing client. Hash names are prefix + container.
func NewRedisStorageWithClient(client RedisClient, prefix string) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix}
}

func (s *RedisStorage) hashKey(container string) string {
	return s.prefix + container
}

// Get retrieves the token stored under key in container.
func (s *RedisStorage) Get(ctx context.Context, container, key string) (string, error) {
	token, err := s.client.HGet(ctx, s.hashKey(container), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", leafprefs.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get from redis: %w", err)
	}
	return token, nil
}

// SetAll merges values into the container hash with a single HSET.
func (s *RedisStorage) SetAll(ctx context.Context, container string, values map[string]string) error {
	if err := leafprefs.ValidateContainer(container); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(values)*2)
	for _, key := range sortedKeys(values) {
		args = append(args, key, values[key])
	}
	if err := s.client.HSet(ctx, s.hashKey(container), args...).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// LoadAll returns the container hash, or nil when it does not exist.
func (s *RedisStorage) LoadAll(ctx context.Context, container string) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.hashKey(container)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load from redis: %w", err)
	}
	return copyTokens(values), nil
}

// Close closes the Redis client.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
