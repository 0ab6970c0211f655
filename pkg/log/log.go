package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	// componentLevels holds per-component severity overrides, keyed by
	// lower-cased component name. Written once during Init.
	componentLevels map[string]zerolog.Level
)

// Severity represents a log severity as spelled on the command line.
type Severity string

const (
	Debug   Severity = "Debug"
	Info    Severity = "Info"
	Notice  Severity = "Notice"
	Warning Severity = "Warning"
	Error   Severity = "Error"
	Off     Severity = "Off"
)

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "notice":
		return Notice, nil
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	case "off":
		return Off, nil
	default:
		return "", fmt.Errorf("unknown severity %q (expected Debug|Info|Notice|Warning|Error|Off)", s)
	}
}

// zerologLevel maps a severity to the closest zerolog level. Notice has no
// zerolog equivalent and rides on Info.
func zerologLevel(s Severity) zerolog.Level {
	switch s {
	case Debug:
		return zerolog.DebugLevel
	case Info, Notice:
		return zerolog.InfoLevel
	case Warning:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	case Off:
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logging configuration
type Config struct {
	Level           Severity
	ComponentLevels map[string]Severity
	JSONOutput      bool
	Output          io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))

	componentLevels = make(map[string]zerolog.Level, len(cfg.ComponentLevels))
	for name, sev := range cfg.ComponentLevels {
		componentLevels[strings.ToLower(name)] = zerologLevel(sev)
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with a component field, honoring any
// per-component severity override.
func WithComponent(component string) zerolog.Logger {
	logger := Logger.With().Str("component", component).Logger()
	if level, ok := componentLevels[strings.ToLower(component)]; ok {
		logger = logger.Level(level)
	}
	return logger
}

// Helper functions for common logging patterns
func Infof(format string, args ...interface{}) {
	Logger.Info().Msgf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warn().Msgf(format, args...)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
