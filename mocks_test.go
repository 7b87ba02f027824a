package leafprefs

import (
	"context"
	"fmt"
	"sync"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mu        sync.RWMutex
	data      map[string]map[string]string
	closed    bool
	setAllErr error
	writes    int
}

func NewMockStorage() *MockStorage {
	return &MockStorage{
		data: make(map[string]map[string]string),
	}
}

// Seed stores tokens directly, bypassing the write counter.
func (m *MockStorage) Seed(container string, values map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[container] == nil {
		m.data[container] = make(map[string]string)
	}
	for k, v := range values {
		m.data[container][k] = v
	}
}

// SetAllError forces SetAll to fail.
func (m *MockStorage) SetAllError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setAllErr = err
}

// Writes returns the number of successful SetAll calls.
func (m *MockStorage) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MockStorage) Get(ctx context.Context, container, key string) (string, error) {
	_, _ = ctx.Deadline()
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrStorageUnavailable
	}
	if token, ok := m.data[container][key]; ok {
		return token, nil
	}
	return "", ErrNotFound
}

func (m *MockStorage) SetAll(ctx context.Context, container string, values map[string]string) error {
	_, _ = ctx.Deadline()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageUnavailable
	}
	if m.setAllErr != nil {
		return m.setAllErr
	}
	if m.data[container] == nil {
		m.data[container] = make(map[string]string)
	}
	for k, v := range values {
		m.data[container][k] = v
	}
	m.writes++
	return nil
}

func (m *MockStorage) LoadAll(ctx context.Context, container string) (map[string]string, error) {
	_, _ = ctx.Deadline()
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageUnavailable
	}
	stored, ok := m.data[container]
	if !ok || len(stored) == 0 {
		return nil, nil
	}
	copied := make(map[string]string, len(stored))
	for k, v := range stored {
		copied[k] = v
	}
	return copied, nil
}

func (m *MockStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// published is one recorded MockBus.Publish call.
type published struct {
	Channel string
	Payload string
}

// MockBus is a synchronous in-memory Bus that records what was published.
type MockBus struct {
	mu           sync.Mutex
	handlers     map[string]map[int]Handler
	nextID       int
	published    []published
	publishErr   error
	subscribeErr error
}

func NewMockBus() *MockBus {
	return &MockBus{handlers: make(map[string]map[int]Handler)}
}

func (b *MockBus) Publish(ctx context.Context, channel, payload string) error {
	_, _ = ctx.Deadline()
	b.mu.Lock()
	if b.publishErr != nil {
		err := b.publishErr
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, published{Channel: channel, Payload: payload})
	var targets []Handler
	for _, h := range b.handlers[channel] {
		targets = append(targets, h)
	}
	b.mu.Unlock()

	for _, h := range targets {
		h(channel, payload)
	}
	return nil
}

func (b *MockBus) Subscribe(channel string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	if b.handlers[channel] == nil {
		b.handlers[channel] = make(map[int]Handler)
	}
	b.nextID++
	b.handlers[channel][b.nextID] = handler
	return &mockSubscription{bus: b, channel: channel, id: b.nextID}, nil
}

// Deliver invokes the handlers of channel without recording a publish,
// as if another process had published.
func (b *MockBus) Deliver(channel, payload string) {
	b.mu.Lock()
	var targets []Handler
	for _, h := range b.handlers[channel] {
		targets = append(targets, h)
	}
	b.mu.Unlock()
	for _, h := range targets {
		h(channel, payload)
	}
}

// Published returns the recorded publishes on channel.
func (b *MockBus) Published(channel string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, p := range b.published {
		if p.Channel == channel {
			out = append(out, p.Payload)
		}
	}
	return out
}

// Subscribers returns the number of live handlers on channel.
func (b *MockBus) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[channel])
}

type mockSubscription struct {
	bus     *MockBus
	channel string
	id      int
}

func (s *mockSubscription) Channel() string { return s.channel }

func (s *mockSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.handlers[s.channel], s.id)
	return nil
}

// MockLogger implements the Logger interface for testing
type MockLogger struct {
	mu       sync.Mutex
	Messages []string
}

func (m *MockLogger) Debug(msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, formatMessage("DEBUG", msg, args...))
}

func (m *MockLogger) Info(msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, formatMessage("INFO", msg, args...))
}

func (m *MockLogger) Warn(msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, formatMessage("WARN", msg, args...))
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, formatMessage("ERROR", msg, args...))
}

// Lines returns a snapshot of the recorded messages.
func (m *MockLogger) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Messages...)
}

func formatMessage(level, msg string, args ...interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf("%s: %s %v", level, msg, args)
	}
	return fmt.Sprintf("%s: %s", level, msg)
}

func newTestManager() (*Manager, *MockStorage, *MockBus) {
	store := NewMockStorage()
	bus := NewMockBus()
	return New(WithStorage(store), WithBus(bus), WithLogger(&MockLogger{})), store, bus
}
