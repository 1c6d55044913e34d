package logging

import (
	"context"
	"log/slog"
	"time"
)

// Attr aliases slog.Attr so callers only import this package.
type Attr = slog.Attr

func String(key, value string) Attr { return slog.String(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Error returns an attribute under the conventional "error" key.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// NewNop returns a logger that discards all records.
func NewNop() *slog.Logger {
	return slog.New(noopHandler{})
}

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (noopHandler) Handle(context.Context, slog.Record) error { return nil }

func (h noopHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h noopHandler) WithGroup(string) slog.Handler { return h }

// NewComponentLogger returns a child logger tagged with the component name.
func NewComponentLogger(base *slog.Logger, component string) *slog.Logger {
	if base == nil {
		base = NewNop()
	}
	if component == "" {
		return base
	}
	return base.With(slog.String(FieldComponent, component))
}

// WarnWithContext logs a warning carrying event type, remediation hint and
// impact fields.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...any) {
	if logger == nil {
		return
	}
	logger.Warn(msg, withEventType(eventType, attrs)...)
}

// ErrorWithContext logs an error carrying an event type.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...any) {
	if logger == nil {
		return
	}
	logger.Error(msg, withEventType(eventType, attrs)...)
}

func withEventType(eventType string, attrs []any) []any {
	if eventType == "" {
		return attrs
	}
	out := make([]any, 0, len(attrs)+1)
	out = append(out, slog.String(FieldEventType, eventType))
	return append(out, attrs...)
}
