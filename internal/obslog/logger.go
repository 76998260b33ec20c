// Package obslog is the structured logger used throughout the history
// backend. Grounded on ws/internal/shared/monitoring/logger.go and
// src/logger.go in the teacher (github.com/adred-codev/ws_poc): zerolog,
// a level-string switch, a json/pretty output-format switch, caller and
// timestamp fields.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the writer used for log output.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Config configures the logger.
type Config struct {
	Level  string // debug|info|warn|error|fatal
	Format Format
}

// New builds a zerolog.Logger tagged with service="chanhistory".
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == FormatPretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "chanhistory").
		Logger()
}

// LogIOError logs a persistence read/write failure against a specific
// object, the "DiskIO... logged to host operator channel" case of spec.md
// §7.
func LogIOError(logger zerolog.Logger, object string, err error) {
	logger.Error().Err(err).Str("object", object).Msg("history: persistence I/O error")
}

// LogCorruption logs a corrupt on-disk file that has been (or is about to
// be) quarantined, the "Corrupt... logged... plus quarantine" case of
// spec.md §7.
func LogCorruption(logger zerolog.Logger, path string, err error) {
	logger.Warn().Err(err).Str("path", path).Msg("history: corrupt history file quarantined")
}
