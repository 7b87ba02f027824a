package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/CreativeUnicorns/leafprefs"
)

// MockLogger records messages for assertions.
type MockLogger struct {
	mu       sync.Mutex
	Messages []string
}

func (l *MockLogger) record(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, fmt.Sprintf("%s: %s %v", level, msg, args))
}

func (l *MockLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args...) }
func (l *MockLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args...) }
func (l *MockLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args...) }
func (l *MockLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args...) }

// Lines returns a copy of the recorded messages.
func (l *MockLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Messages...)
}

// failingStorage fails every read with err.
type failingStorage struct {
	leafprefs.Storage
	err error
}

func (s failingStorage) Get(context.Context, string, string) (string, error) {
	return "", s.err
}
