package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root structured logger. Components derive child loggers via
// logger.With().Str("component", ...).
func New(appName, env string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339Nano,
		NoColor:    env == "production",
	}
	return zerolog.New(output).With().
		Timestamp().
		Str("app", appName).
		Str("env", env).
		Logger()
}
