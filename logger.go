// Package leafprefs provides default logging implementations.
package leafprefs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel defines the various log levels.
// These correspond to slog's levels.
type LogLevel int

// Log level constants, mirroring slog levels for internal mapping.
const (
	LogLevelDebug LogLevel = LogLevel(slog.LevelDebug)
	LogLevelInfo  LogLevel = LogLevel(slog.LevelInfo)
	LogLevelWarn  LogLevel = LogLevel(slog.LevelWarn)
	LogLevelError LogLevel = LogLevel(slog.LevelError)
)

// ParseLogLevel maps "debug", "info", "warn" or "error" to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// LevelLogger is a Logger whose level can be changed at runtime.
type LevelLogger interface {
	Logger
	SetLevel(level LogLevel)
}

// defaultSlogLogger is an implementation of the Logger interface using the slog package.
type defaultSlogLogger struct {
	slogger  *slog.Logger
	levelVar *slog.LevelVar
}

// NewDefaultLogger returns a JSON logger writing to os.Stderr at info level.
func NewDefaultLogger() LevelLogger {
	return NewLogger(os.Stderr, LogLevelInfo)
}

// NewLogger returns a JSON logger writing to w at the given level.
func NewLogger(w io.Writer, level LogLevel) LevelLogger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.Level(level))

	return &defaultSlogLogger{
		slogger:  slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelVar})),
		levelVar: levelVar,
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &defaultSlogLogger{slogger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *defaultSlogLogger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

func (l *defaultSlogLogger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

func (l *defaultSlogLogger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

func (l *defaultSlogLogger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// SetLevel changes the logging level dynamically.
func (l *defaultSlogLogger) SetLevel(level LogLevel) {
	if l.levelVar != nil {
		l.levelVar.Set(slog.Level(level))
	}
}
