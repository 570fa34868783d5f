package logging

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"

	"animgen/internal/observability"
)

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (nopLogger) DebugEnabled() bool { return false }

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// DebugEnabled reports whether logger would emit debug lines. Loggers that do
// not expose a level are assumed to.
func DebugEnabled(logger Logger) bool {
	if IsNil(logger) {
		return false
	}
	if leveled, ok := logger.(interface{ DebugEnabled() bool }); ok {
		return leveled.DebugEnabled()
	}
	return true
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var defaultLogger atomic.Pointer[observability.Logger]

// SetDefault installs the process-wide structured logger that component
// loggers write through. Call it once at startup.
func SetDefault(logger *observability.Logger) {
	defaultLogger.Store(logger)
}

// NewComponentLogger returns the default application logger scoped to a
// component. Before SetDefault is called it discards output.
func NewComponentLogger(component string) Logger {
	base := defaultLogger.Load()
	if base == nil {
		return Nop()
	}
	return FromObservabilityWithComponent(base, component)
}

type observabilityPrintfLogger struct {
	logger *observability.Logger
}

// FromObservabilityWithComponent wraps an observability logger and preserves
// printf-style call sites by formatting the message before emitting it.
func FromObservabilityWithComponent(logger *observability.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	scoped := logger
	if component != "" {
		scoped = scoped.With("component", component)
	}
	return &observabilityPrintfLogger{logger: scoped}
}

func (l *observabilityPrintfLogger) Debug(format string, args ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *observabilityPrintfLogger) DebugEnabled() bool {
	return l.logger.Enabled(slog.LevelDebug)
}

func (l *observabilityPrintfLogger) Info(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *observabilityPrintfLogger) Warn(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *observabilityPrintfLogger) Error(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

// Recorder is a Logger that keeps formatted entries in memory, for tests.
type Recorder struct {
	Entries []Entry
}

// Entry is one recorded log line.
type Entry struct {
	Level   string
	Message string
}

func (r *Recorder) record(level, format string, args ...any) {
	r.Entries = append(r.Entries, Entry{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (r *Recorder) Debug(format string, args ...any) { r.record("debug", format, args...) }
func (r *Recorder) Info(format string, args ...any)  { r.record("info", format, args...) }
func (r *Recorder) Warn(format string, args ...any)  { r.record("warn", format, args...) }
func (r *Recorder) Error(format string, args ...any) { r.record("error", format, args...) }

// Messages returns the messages recorded at level.
func (r *Recorder) Messages(level string) []string {
	var out []string
	for _, entry := range r.Entries {
		if entry.Level == level {
			out = append(out, entry.Message)
		}
	}
	return out
}
