// Package config loads the leafprefs-host configuration from YAML or TOML
// files with LEAFPREFS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/CreativeUnicorns/leafprefs"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Bus backends. The hub bus serves leaves over the host's WebSocket endpoint;
// the redis bus has leaves and host meet on a Redis server instead.
const (
	BusHub   = "hub"
	BusRedis = "redis"
)

// ErrInvalidConfig is returned by Validate and Load for unusable settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the host configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Bus     BusConfig     `yaml:"bus" toml:"bus"`
	Redis   RedisConfig   `yaml:"redis" toml:"redis"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// StorageConfig selects and configures the preference store.
type StorageConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	// Root is the container directory of the file backend. Empty means the default root.
	Root string `yaml:"root" toml:"root"`
	// Path is the SQLite database file.
	Path string `yaml:"path" toml:"path"`
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn" toml:"dsn"`
	// Encrypt wraps the backend in AES-GCM encryption keyed by LEAFPREFS_ENCRYPTION_KEY.
	Encrypt bool `yaml:"encrypt" toml:"encrypt"`
	// Watch relays direct edits of container files to the bus. File backend only.
	Watch bool `yaml:"watch" toml:"watch"`
	// CacheTTL keeps loaded containers in memory for this long, e.g. "30s". Empty disables the cache.
	CacheTTL string `yaml:"cache_ttl" toml:"cache_ttl"`
}

// BusConfig selects the bus the host answers on.
type BusConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
}

// RedisConfig is shared by the redis storage and bus backends.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	ListenAddress  string   `yaml:"listen_address" toml:"listen_address"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// LogConfig configures the host logger.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Backend: StorageFile},
		Bus:     BusConfig{Backend: BusHub},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		Server:  ServerConfig{ListenAddress: ":8080"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := cfg.decode(path, data); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses data by the extension of path.
func (c *Config) decode(path string, data []byte) error {
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, ext)
	}
	if err != nil {
		return fmt.Errorf("parse error in %s: %w", path, err)
	}
	return nil
}

// envVar maps one environment variable onto the configuration.
type envVar struct {
	name  string
	apply func(c *Config, value string) error
}

func envVars() []envVar {
	str := func(name string, field func(c *Config) *string) envVar {
		return envVar{name: name, apply: func(c *Config, v string) error {
			*field(c) = v
			return nil
		}}
	}
	return []envVar{
		str("LEAFPREFS_STORAGE", func(c *Config) *string { return &c.Storage.Backend }),
		str("LEAFPREFS_ROOT", func(c *Config) *string { return &c.Storage.Root }),
		str("LEAFPREFS_SQLITE_PATH", func(c *Config) *string { return &c.Storage.Path }),
		str("LEAFPREFS_POSTGRES_DSN", func(c *Config) *string { return &c.Storage.DSN }),
		str("LEAFPREFS_CACHE_TTL", func(c *Config) *string { return &c.Storage.CacheTTL }),
		str("LEAFPREFS_BUS", func(c *Config) *string { return &c.Bus.Backend }),
		str("LEAFPREFS_REDIS_ADDR", func(c *Config) *string { return &c.Redis.Addr }),
		str("LEAFPREFS_REDIS_PASSWORD", func(c *Config) *string { return &c.Redis.Password }),
		str("LEAFPREFS_LISTEN_ADDR", func(c *Config) *string { return &c.Server.ListenAddress }),
		str("LEAFPREFS_LOG_LEVEL", func(c *Config) *string { return &c.Log.Level }),
		{name: "LEAFPREFS_REDIS_DB", apply: func(c *Config, v string) error {
			db, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			c.Redis.DB = db
			return nil
		}},
		{name: "LEAFPREFS_ENCRYPT", apply: func(c *Config, v string) error {
			on, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			c.Storage.Encrypt = on
			return nil
		}},
		{name: "LEAFPREFS_WATCH", apply: func(c *Config, v string) error {
			on, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			c.Storage.Watch = on
			return nil
		}},
		{name: "LEAFPREFS_ALLOWED_ORIGINS", apply: func(c *Config, v string) error {
			c.Server.AllowedOrigins = nil
			for _, o := range strings.Split(v, ",") {
				if o = strings.TrimSpace(o); o != "" {
					c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, o)
				}
			}
			return nil
		}},
	}
}

// ApplyEnv overrides settings from the environment seen through lookup.
// Empty values are treated as set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, ev := range envVars() {
		value, ok := lookup(ev.name)
		if !ok {
			continue
		}
		if err := ev.apply(c, value); err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, ev.name, value, err)
		}
	}
	return nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case StorageMemory, StorageFile:
	case StorageSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("%w: storage.path is required for sqlite", ErrInvalidConfig))
		}
	case StoragePostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("%w: storage.dsn is required for postgres", ErrInvalidConfig))
		}
	case StorageRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("%w: redis.addr is required for redis storage", ErrInvalidConfig))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend))
	}
	if c.Storage.Watch && c.Storage.Backend != StorageFile {
		errs = append(errs, fmt.Errorf("%w: storage.watch requires the file backend", ErrInvalidConfig))
	}
	if c.Storage.Watch && c.Storage.Encrypt {
		errs = append(errs, fmt.Errorf("%w: storage.watch cannot relay encrypted tokens", ErrInvalidConfig))
	}
	if ttl, err := c.CacheTTL(); err != nil {
		errs = append(errs, err)
	} else if ttl > 0 && c.Storage.Watch {
		errs = append(errs, fmt.Errorf("%w: storage.watch and storage.cache_ttl are exclusive", ErrInvalidConfig))
	}

	switch c.Bus.Backend {
	case BusHub:
	case BusRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("%w: redis.addr is required for redis bus", ErrInvalidConfig))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown bus backend %q", ErrInvalidConfig, c.Bus.Backend))
	}

	if c.Server.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("%w: server.listen_address is required", ErrInvalidConfig))
	}
	if _, err := leafprefs.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	return errors.Join(errs...)
}

// CacheTTL parses storage.cache_ttl. Empty means no cache.
func (c *Config) CacheTTL() (time.Duration, error) {
	if c.Storage.CacheTTL == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.Storage.CacheTTL)
	if err != nil || ttl < 0 {
		return 0, fmt.Errorf("%w: storage.cache_ttl %q", ErrInvalidConfig, c.Storage.CacheTTL)
	}
	return ttl, nil
}

// LogLevel returns the parsed log level, info when unparseable.
func (c *Config) LogLevel() leafprefs.LogLevel {
	level, _ := leafprefs.ParseLogLevel(c.Log.Level)
	return level
}
