package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level Level) zerolog.Level {
	switch level {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		parsed, _ := zerolog.ParseLevel(string(level))
		return parsed
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the global logger
func Init(cfg Config) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRunID creates a child logger with run_id field
func WithRunID(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Logger()
}

// WithState creates a child logger with state field
func WithState(logger zerolog.Logger, state string) zerolog.Logger {
	return logger.With().Str("state", state).Logger()
}

// WithAgent creates a child logger with agent field
func WithAgent(logger zerolog.Logger, agent string) zerolog.Logger {
	return logger.With().Str("agent", agent).Logger()
}

// Info, Warn and Error log a message on the global logger
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

// Errorf logs msg with err attached
func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}
