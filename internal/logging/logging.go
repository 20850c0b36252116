// Package logging builds the process-wide zerolog.Logger, grounded on the
// worker/server texture in the pack (outbox.Worker, helpdesk-go's
// cmd/worker): components take a zerolog.Logger by constructor injection
// rather than reaching for a package-level global.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a logger from LOG_LEVEL ("debug"|"info"|"warn"|"error", default
// "info") and LOG_FORMAT ("json"|"console", default "json").
func New(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	if strings.EqualFold(format, "console") {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(lvl).
			With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
