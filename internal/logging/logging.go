package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger creates the service's root structured logger.
func NewLogger(level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "tokengate").Logger()

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return logger.Level(parsed)
}
