package host

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/CreativeUnicorns/leafprefs"
	"github.com/CreativeUnicorns/leafprefs/bus"
	"github.com/CreativeUnicorns/leafprefs/config"
	"github.com/CreativeUnicorns/leafprefs/storage"
)

// ClosableBus is a Bus owned by the host.
type ClosableBus interface {
	leafprefs.Bus
	Close() error
}

// OpenStorage builds the configured storage backend, wrapped in encryption
// when storage.encrypt is set and in a container cache when storage.cache_ttl is.
func OpenStorage(cfg *config.Config) (leafprefs.Storage, error) {
	var (
		s   leafprefs.Storage
		err error
	)
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		s = storage.NewMemoryStorage()
	case config.StorageFile:
		s, err = storage.NewFileStorage(cfg.Storage.Root)
	case config.StorageSQLite:
		s, err = storage.NewSQLiteStorage(cfg.Storage.Path)
	case config.StoragePostgres:
		s, err = storage.NewPostgresStorage(cfg.Storage.DSN)
	case config.StorageRedis:
		s, err = storage.NewRedisStorage(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", config.ErrInvalidConfig, cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Encrypt {
		cipher, err := storage.NewCipherFromEnv()
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s = storage.NewEncryptedStorage(s, cipher)
	}

	ttl, err := cfg.CacheTTL()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if ttl > 0 {
		s = storage.NewCachedStorage(s, ttl)
	}
	return s, nil
}

// OpenBus builds the configured bus. With the hub backend the result is a
// *bus.Hub that must be mounted by the HTTP server. metrics may be nil.
func OpenBus(cfg *config.Config, logger leafprefs.Logger, metrics *Metrics) (ClosableBus, error) {
	switch cfg.Bus.Backend {
	case config.BusHub:
		hub := bus.NewHub(
			bus.WithHubLogger(logger),
			bus.WithCheckOrigin(OriginChecker(cfg.Server.AllowedOrigins)),
			bus.WithPublishHook(metrics.ObserveRouted),
		)
		if metrics != nil {
			metrics.ObserveConnections(hub.Connections)
		}
		return hub, nil
	case config.BusRedis:
		return bus.NewRedisBus(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown bus backend %q", config.ErrInvalidConfig, cfg.Bus.Backend)
	}
}

// OriginChecker allows requests without an Origin header, requests from a
// listed origin, and everything when the list is empty or contains "*".
func OriginChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
