package logging

import (
	"context"
	"log/slog"
	"os"
)

type contextKey struct{}

// New returns a JSON logger for release mode and a text logger otherwise
func New(release bool) *slog.Logger {
	if release {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// ContextWithLogger returns a derived context that carries the provided logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a logger previously attached to the context, falling
// back to base and then to slog.Default.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
			return logger
		}
	}
	if base != nil {
		return base
	}
	return slog.Default()
}
