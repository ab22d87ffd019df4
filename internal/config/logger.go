package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide zerolog root logger. APP_ENV=development
// lowers the level to debug; transport-connect noise is logged at debug so it
// stays invisible everywhere else.
func NewLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if IsDevelopment() {
		level = zerolog.DebugLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}
