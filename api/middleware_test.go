package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CreativeUnicorns/leafprefs/bus"
)

// recordingLogger keeps every line as "LEVEL msg k=v ...".
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := level + " " + msg
	for i := 0; i+1 < len(args); i += 2 {
		line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	l.lines = append(l.lines, line)
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

func (l *recordingLogger) find(prefix string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.HasPrefix(line, prefix) {
			return line, true
		}
	}
	return "", false
}

func TestLoggerMiddlewareRequest(t *testing.T) {
	logger := &recordingLogger{}
	h := LoggerMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	line, ok := logger.find("INFO Served request")
	require.True(t, ok)
	assert.Contains(t, line, "status=418")
	assert.Contains(t, line, "bytes=2")
}

func TestLoggerMiddlewareBusConnection(t *testing.T) {
	logger := &recordingLogger{}
	hub := bus.NewHub()
	srv := httptest.NewServer(LoggerMiddleware(logger)(hub))
	t.Cleanup(func() {
		_ = hub.Close()
		srv.Close()
	})

	client, err := bus.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := logger.find("INFO Leaf connected to bus")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	_, served := logger.find("INFO Served request")
	assert.False(t, served)

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool {
		line, ok := logger.find("INFO Leaf left bus")
		return ok && strings.Contains(line, "connected_ms=")
	}, 2*time.Second, 10*time.Millisecond)
}
