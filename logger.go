package atomicstate

import (
	"context"
	"log/slog"
)

// Logger provides structured logging for store internals.
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// Tracer provides optional tracing for store operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, func())
}

// noopLogger discards all log output. It is the default when no logger is
// configured.
type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

// slogLogger adapts a *slog.Logger to the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger returns a Logger backed by the given slog logger. A nil
// argument uses slog's default logger.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(ctx context.Context, msg string, keysAndValues ...any) {
	s.l.DebugContext(ctx, msg, keysAndValues...)
}

func (s *slogLogger) Info(ctx context.Context, msg string, keysAndValues ...any) {
	s.l.InfoContext(ctx, msg, keysAndValues...)
}

func (s *slogLogger) Error(ctx context.Context, msg string, keysAndValues ...any) {
	s.l.ErrorContext(ctx, msg, keysAndValues...)
}
