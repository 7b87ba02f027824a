package leafprefs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// BusLogger forwards log lines from a leaf to the host over LogChannel.
// Delivery is fire-and-forget.
type BusLogger struct {
	bus      Bus
	bundle   string
	levelVar *slog.LevelVar
}

// NewBusLogger returns a logger publishing as bundle. Lines below info are dropped.
func NewBusLogger(bus Bus, bundle string) *BusLogger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	return &BusLogger{bus: bus, bundle: bundle, levelVar: levelVar}
}

// SetLevel changes the minimum level forwarded.
func (l *BusLogger) SetLevel(level LogLevel) { l.levelVar.Set(slog.Level(level)) }

// Log publishes message as-is.
func (l *BusLogger) Log(ctx context.Context, message string) {
	if l.bus == nil {
		return
	}
	_ = l.bus.Publish(ctx, LogChannel, LogPayload(l.bundle, message))
}

func (l *BusLogger) Debug(msg string, args ...any) { l.emit(LogLevelDebug, "DEBUG", msg, args) }
func (l *BusLogger) Info(msg string, args ...any)  { l.emit(LogLevelInfo, "INFO", msg, args) }
func (l *BusLogger) Warn(msg string, args ...any)  { l.emit(LogLevelWarn, "WARN", msg, args) }
func (l *BusLogger) Error(msg string, args ...any) { l.emit(LogLevelError, "ERROR", msg, args) }

func (l *BusLogger) emit(level LogLevel, label, msg string, args []any) {
	if slog.Level(level) < l.levelVar.Level() {
		return
	}
	l.Log(context.Background(), formatLine(label, msg, args))
}

// formatLine renders "LEVEL msg k=v k=v". A trailing key without value is printed as !BADKEY.
func formatLine(label, msg string, args []any) string {
	var sb strings.Builder
	sb.WriteString(label)
	sb.WriteByte(' ')
	sb.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		sb.WriteByte(' ')
		if i+1 >= len(args) {
			fmt.Fprintf(&sb, "!BADKEY=%v", args[i])
			break
		}
		fmt.Fprintf(&sb, "%v=%v", args[i], args[i+1])
	}
	return sb.String()
}
