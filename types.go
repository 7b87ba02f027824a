// Package leafprefs defines the configuration used by a Manager.
package leafprefs

// Config holds the internal configuration for a Manager instance.
// It is populated by applying functional Options when a Manager is created with New().
type Config struct {
	// storage is the persistence layer holding every container's tokens.
	storage Storage
	// bus carries change notifications and brokered requests.
	bus Bus
	// logger is the logging interface used by the Manager and everything it builds.
	logger Logger
	// registry tracks brokered requests awaiting a host response.
	registry *Registry
}

// Option defines the signature for a functional option that configures a Manager instance.
type Option func(*Config)

// WithStorage sets the Storage backend. Without one every read comes back empty
// and every write is dropped.
func WithStorage(s Storage) Option {
	return func(c *Config) {
		c.storage = s
	}
}

// WithBus sets the notification bus. Without one, change notifications and
// brokered requests are not sent.
func WithBus(b Bus) Option {
	return func(c *Config) {
		c.bus = b
	}
}

// WithLogger sets the Logger. Defaults to NewDefaultLogger().
func WithLogger(l Logger) Option {
	return func(c *Config) {
		c.logger = l
	}
}

// WithRegistry shares a completion registry between managers of one process.
func WithRegistry(r *Registry) Option {
	return func(c *Config) {
		c.registry = r
	}
}
