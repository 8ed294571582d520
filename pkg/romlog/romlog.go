// Package romlog carries a structured logger through a context.Context,
// the same way the upstream controller threads a logger from request
// scope down into validation helpers.
package romlog

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

// fallback is used when no logger has been attached to the context; it
// never panics a caller that forgot to call WithLogger.
var fallback = zap.NewNop().Sugar()

// WithLogger returns a context carrying l, retrievable with FromContext.
func WithLogger(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger attached to ctx, or a no-op logger if
// none was attached.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok && l != nil {
		return l
	}
	return fallback
}

// NewDevelopment builds a human-readable development logger, for use in
// the CLI and in tests.
func NewDevelopment() *zap.SugaredLogger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return fallback
	}
	return l.Sugar()
}

// NewProduction builds a JSON production logger.
func NewProduction() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		return fallback
	}
	return l.Sugar()
}
