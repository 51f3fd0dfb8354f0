// Package logger provides leveled structured logging for the service.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log = zerolog.Nop()

// Init initializes the default logger with the specified level and format
// ("json" or "text").
func Init(level string, format string) {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}

	var out io.Writer = os.Stderr
	if strings.ToLower(format) == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	log = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func Debug(format string, args ...interface{}) {
	log.Debug().Msgf(format, args...)
}

func Info(format string, args ...interface{}) {
	log.Info().Msgf(format, args...)
}

func Warn(format string, args ...interface{}) {
	log.Warn().Msgf(format, args...)
}

func Error(format string, args ...interface{}) {
	log.Error().Msgf(format, args...)
}

// Fatal logs at fatal level and exits the process.
func Fatal(format string, args ...interface{}) {
	log.WithLevel(zerolog.FatalLevel).Msgf(format, args...)
	os.Exit(1)
}
