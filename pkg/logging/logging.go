// Package logging provides structured logging for asorg-db using zerolog.
package logging

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/asorg-db/internal/logctx"
)

var (
	logger     *zerolog.Logger
	prettyMode atomic.Bool
)

func init() {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger. debug lowers the level to Debug;
// human switches to the console writer and adds human-readable companion
// fields (e.g. "duration_h") to completion events.
func Init(debug bool, human bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	SetPrettyMode(human)

	var output zerolog.LevelWriter
	if human {
		output = zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}}
	} else {
		output = zerolog.LevelWriterAdapter{Writer: os.Stderr}
	}

	SetLogger(zerolog.New(output).With().Timestamp().Logger())
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// WithPhase returns a logger with the phase field set.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger overrides the global logger. It also becomes the fallback for
// contexts that carry no logger.
func SetLogger(l zerolog.Logger) {
	logger = &l
	logctx.SetDefaultLogger(l)
}

// IsPrettyMode reports whether human-readable fields are enabled.
func IsPrettyMode() bool {
	return prettyMode.Load()
}

// SetPrettyMode toggles human-readable companion fields.
func SetPrettyMode(on bool) {
	prettyMode.Store(on)
}
