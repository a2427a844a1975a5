// Package logging builds the zerolog logger shared by the CLI and the engine.
package logging

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/secretvault/internal/config"
)

type Logger = zerolog.Logger

// New returns a logger writing to w. verbose forces debug level regardless
// of the configured one; it never changes what is logged, only how much.
func New(cfg config.Logging, verbose bool, w io.Writer) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	out := w
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.WarnLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Nop discards everything.
func Nop() Logger { return zerolog.Nop() }
