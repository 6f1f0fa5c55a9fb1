// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level  string `yaml:"level" env:"VOCHAT_LOG_LEVEL"`
	Format string `yaml:"format" env:"VOCHAT_LOG_FORMAT"` // json or console
}

// DefaultConfig logs info and above as JSON.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json"}
}

// Init replaces the global logger. Output goes to stderr so stdout stays free
// for tools that pipe the desktop binary.
func Init(cfg Config) zerolog.Logger {
	return InitWithWriter(cfg, os.Stderr)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(cfg Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithSession tags a logger with a recording's idempotency key.
func WithSession(logger zerolog.Logger, clientSessionID string) zerolog.Logger {
	return logger.With().
		Str("clientSessionId", clientSessionID).
		Logger()
}

// WithAccount tags a logger with the authenticated account.
func WithAccount(logger zerolog.Logger, accountID string) zerolog.Logger {
	return logger.With().
		Str("accountId", accountID).
		Logger()
}
