package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger builds the process logger: human readable in dev, JSON elsewhere.
// An unknown LOG_LEVEL falls back to info.
func (c Config) Logger(component string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if c.Env == "" || c.Env == "dev" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return c.newLogger(out, component)
}

func (c Config) newLogger(out io.Writer, component string) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", component).
		Logger()
}

// StartupLogger is used before the configuration is known, when Load fails.
func StartupLogger(out io.Writer, component string) zerolog.Logger {
	return zerolog.New(out).With().Timestamp().Str("service", component).Logger()
}
