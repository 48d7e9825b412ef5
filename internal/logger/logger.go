// Package logger builds the process-wide structured logger.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New constructs a service logger. Development environments get a console
// writer; everything else logs structured JSON to stderr.
func New(serviceName, env, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if env == "development" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return log.Output(output).With().Timestamp().Str("service", serviceName).Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", serviceName).Logger()
}
