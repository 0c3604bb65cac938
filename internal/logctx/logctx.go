// Package logctx carries zerolog loggers through context.Context.
//
// The build pipeline attaches the snapshot day and file name to the logger
// before handing the context to the parser and resolver, so every line they
// log names the file it came from:
//
//	ctx = logctx.WithDay(ctx, ref.Day)
//	logctx.FromContext(ctx).Error().Uint32("asn", asn).Msg("...")
package logctx

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

var (
	defaultLogger     zerolog.Logger
	defaultLoggerOnce sync.Once
)

func initDefaultLogger() {
	defaultLoggerOnce.Do(func() {
		defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
}

// DefaultLogger returns the logger used when a context carries none.
func DefaultLogger() zerolog.Logger {
	initDefaultLogger()
	return defaultLogger
}

// SetDefaultLogger replaces the fallback logger. Call it during start-up only.
func SetDefaultLogger(l zerolog.Logger) {
	initDefaultLogger()
	defaultLogger = l
}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the context's logger, or the default logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return DefaultLogger()
}

// WithStr adds a string field to the context's logger.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithDay tags the context's logger with a snapshot day.
func WithDay(ctx context.Context, day string) context.Context {
	return WithStr(ctx, "snapshot_day", day)
}

// WithFile tags the context's logger with a snapshot file name.
func WithFile(ctx context.Context, name string) context.Context {
	return WithStr(ctx, "snapshot_file", name)
}
