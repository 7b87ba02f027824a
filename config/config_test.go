package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CreativeUnicorns/leafprefs"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StorageFile, cfg.Storage.Backend)
	assert.Equal(t, BusHub, cfg.Bus.Backend)
	assert.Equal(t, leafprefs.LogLevelInfo, cfg.LogLevel())
}

func TestDecodeYAML(t *testing.T) {
	path := writeConfig(t, "host.yaml", `
storage:
  backend: sqlite
  path: /tmp/prefs.db
  encrypt: true
bus:
  backend: redis
redis:
  addr: redis:6379
  db: 2
server:
  listen_address: ":9090"
  allowed_origins: ["http://localhost"]
log:
  level: debug
`)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	cfg := Default()
	require.NoError(t, cfg.decode(path, data))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/prefs.db", cfg.Storage.Path)
	assert.True(t, cfg.Storage.Encrypt)
	assert.Equal(t, BusRedis, cfg.Bus.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, ":9090", cfg.Server.ListenAddress)
	assert.Equal(t, []string{"http://localhost"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, leafprefs.LogLevelDebug, cfg.LogLevel())
}

func TestDecodeTOML(t *testing.T) {
	path := writeConfig(t, "host.toml", `
[storage]
backend = "file"
root = "/tmp/prefs"
watch = true

[server]
listen_address = "127.0.0.1:8081"
`)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	cfg := Default()
	require.NoError(t, cfg.decode(path, data))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/prefs", cfg.Storage.Root)
	assert.True(t, cfg.Storage.Watch)
	assert.Equal(t, "127.0.0.1:8081", cfg.Server.ListenAddress)
	// untouched sections keep their defaults
	assert.Equal(t, BusHub, cfg.Bus.Backend)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestDecodeErrors(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.decode("host.json", []byte(`{}`)), ErrInvalidConfig)
	assert.ErrorContains(t, cfg.decode("host.toml", []byte(`[storage`)), "parse error in host.toml")
	assert.Error(t, cfg.decode("host.yml", []byte("storage: [")))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"LEAFPREFS_STORAGE":         "postgres",
		"LEAFPREFS_POSTGRES_DSN":    "postgres://localhost/prefs",
		"LEAFPREFS_REDIS_DB":        "3",
		"LEAFPREFS_ENCRYPT":         "true",
		"LEAFPREFS_LOG_LEVEL":       "warn",
		"LEAFPREFS_ALLOWED_ORIGINS": "http://a, http://b,",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, StoragePostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/prefs", cfg.Storage.DSN)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.True(t, cfg.Storage.Encrypt)
	assert.Equal(t, leafprefs.LogLevelWarn, cfg.LogLevel())
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)
}

func TestCacheTTL(t *testing.T) {
	cfg := Default()
	ttl, err := cfg.CacheTTL()
	require.NoError(t, err)
	assert.Zero(t, ttl)

	require.NoError(t, cfg.ApplyEnv(lookupFrom(map[string]string{"LEAFPREFS_CACHE_TTL": "30s"})))
	ttl, err = cfg.CacheTTL()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, ttl)
}

func TestApplyEnvInvalid(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{"LEAFPREFS_REDIS_DB": "two"}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "LEAFPREFS_REDIS_DB")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"sqlite without path", func(c *Config) { c.Storage.Backend = StorageSQLite }, "storage.path"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = StoragePostgres }, "storage.dsn"},
		{"redis storage without addr", func(c *Config) { c.Storage.Backend = StorageRedis; c.Redis.Addr = "" }, "redis storage"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "etcd" }, "unknown storage backend"},
		{"watch on memory", func(c *Config) { c.Storage.Backend = StorageMemory; c.Storage.Watch = true }, "storage.watch"},
		{"watch with encryption", func(c *Config) { c.Storage.Watch = true; c.Storage.Encrypt = true }, "encrypted tokens"},
		{"bad cache ttl", func(c *Config) { c.Storage.CacheTTL = "soon" }, "cache_ttl"},
		{"negative cache ttl", func(c *Config) { c.Storage.CacheTTL = "-1s" }, "cache_ttl"},
		{"cache with watch", func(c *Config) { c.Storage.CacheTTL = "1s"; c.Storage.Watch = true }, "exclusive"},
		{"unknown bus", func(c *Config) { c.Bus.Backend = "nats" }, "unknown bus backend"},
		{"redis bus without addr", func(c *Config) { c.Bus.Backend = BusRedis; c.Redis.Addr = "" }, "redis bus"},
		{"no listen address", func(c *Config) { c.Server.ListenAddress = "" }, "listen_address"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "host.yaml", "storage:\n  backend: memory\n")
	t.Setenv("LEAFPREFS_LISTEN_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, ":7070", cfg.Server.ListenAddress)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	bad := writeConfig(t, "bad.yaml", "storage:\n  backend: etcd\n")
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
