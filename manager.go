// manager.go
package leafprefs

import (
	"context"
	"errors"
	"fmt"
)

// Manager ties a Storage, a Bus and a completion Registry together. Preferences,
// groups and root Preferences are built through it so they share the same backends.
type Manager struct {
	config *Config
}

// New creates a Manager configured by opts.
func New(opts ...Option) *Manager {
	cfg := &Config{}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		cfg.logger = NewDefaultLogger()
	}
	if cfg.registry == nil {
		cfg.registry = NewRegistry()
	}

	return &Manager{
		config: cfg,
	}
}

// Logger returns the manager's logger.
func (m *Manager) Logger() Logger { return m.config.logger }

// Registry returns the registry of pending brokered requests.
func (m *Manager) Registry() *Registry { return m.config.registry }

// Storage returns the configured backend, which may be nil.
func (m *Manager) Storage() Storage { return m.config.storage }

// Bus returns the configured bus, which may be nil.
func (m *Manager) Bus() Bus { return m.config.bus }

// SaveValue writes v under key in container. Calls addressed to the "nil"
// sentinel key or container are ignored. Failures are logged, never returned.
func (m *Manager) SaveValue(ctx context.Context, v Value, key, container string) {
	if isSentinel(key) || isSentinel(container) {
		m.config.logger.Debug("Ignoring save for sentinel key or container", "key", key, "container", container)
		return
	}
	if m.config.storage == nil {
		m.config.logger.Warn("No storage configured, dropping value", "key", key, "container", container)
		return
	}

	if err := m.config.storage.SetAll(ctx, container, map[string]string{key: v.Encode()}); err != nil {
		m.config.logger.Error("Failed to save preference value", "key", key, "container", container, "error", err)
	}
}

// ValueForKey reads key from container. Missing, unreadable or unavailable data
// all report found == false.
func (m *Manager) ValueForKey(ctx context.Context, key, container string) (Value, bool) {
	if m.config.storage == nil {
		return Value{}, false
	}

	token, err := m.config.storage.Get(ctx, container, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.config.logger.Warn("Failed to read preference value", "key", key, "container", container, "error", err)
		}
		return Value{}, false
	}
	return Decode(token), true
}

// LoadAll returns every value stored in container, decoded. Unreadable data yields nil.
func (m *Manager) LoadAll(ctx context.Context, container string) map[string]Value {
	if m.config.storage == nil {
		return nil
	}

	tokens, err := m.config.storage.LoadAll(ctx, container)
	if err != nil {
		m.config.logger.Warn("Failed to load container", "container", container, "error", err)
		return nil
	}
	if len(tokens) == 0 {
		return nil
	}

	values := make(map[string]Value, len(tokens))
	for key, token := range tokens {
		values[key] = Decode(token)
	}
	return values
}

// ExpensiveValueForKey asks the host for the value of id in container over the bus.
// It returns as soon as the request is published; completion runs once, when the
// host answers. There is no timeout: use Registry().Cancel(RequestKey(id, container))
// to give up. A newer request for the same id and container replaces this one.
func (m *Manager) ExpensiveValueForKey(ctx context.Context, id, container string, completion Completion) error {
	if m.config.bus == nil {
		return ErrBusUnavailable
	}
	if completion == nil {
		completion = func(Value, bool) {}
	}

	registry := m.config.registry
	key := RequestKey(id, container)
	pending := registry.register(key, completion)

	sub, err := m.config.bus.Subscribe(ResponseChannel(id, container), func(_, payload string) {
		registry.Resolve(key, payload)
	})
	if err != nil {
		registry.drop(key, pending)
		return fmt.Errorf("subscribe for value response: %w", err)
	}
	if !registry.attach(key, pending, sub) {
		_ = sub.Unsubscribe()
	}

	if err := m.config.bus.Publish(ctx, ValueRequestChannel, RequestPayload(id, container)); err != nil {
		registry.drop(key, pending)
		_ = sub.Unsubscribe()
		return fmt.Errorf("publish value request: %w", err)
	}

	m.config.logger.Debug("Requested preference value from host", "id", id, "container", container)
	return nil
}

// publish sends payload on channel, logging instead of failing when there is no bus.
func (m *Manager) publish(ctx context.Context, channel, payload string) {
	if m.config.bus == nil {
		return
	}
	if err := m.config.bus.Publish(ctx, channel, payload); err != nil {
		m.config.logger.Error("Failed to publish notification", "channel", channel, "error", err)
	}
}

// subscribe registers handler on channel. Without a bus it returns a nil subscription.
func (m *Manager) subscribe(channel string, handler Handler) Subscription {
	if m.config.bus == nil {
		return nil
	}
	sub, err := m.config.bus.Subscribe(channel, handler)
	if err != nil {
		m.config.logger.Error("Failed to subscribe", "channel", channel, "error", err)
		return nil
	}
	return sub
}
