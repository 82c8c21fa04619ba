package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Logger = zerolog.Logger

type Fields map[string]interface{}

// New builds the process logger. The local environment gets a human-readable
// console writer; everything else emits JSON lines.
func New(env, level string) Logger {
	var out io.Writer = os.Stdout
	if env == "local" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Nop discards everything; handy in tests.
func Nop() Logger { return zerolog.Nop() }

func With(logger Logger, fields Fields) Logger {
	return logger.With().Fields(map[string]interface{}(fields)).Logger()
}
