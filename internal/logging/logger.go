package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

// Logger holds the zerolog logger instance
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new logger instance with the specified log level
func NewLogger(logLevel LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	level, err := zerolog.ParseLevel(string(logLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{
		logger: logger,
	}
}

// Zerolog returns the underlying zerolog logger for component wiring.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

// Fatal logs a fatal message, then calls os.Exit(1)
func (l *Logger) Fatal(msg string) {
	l.logger.Fatal().Msg(msg)
}

// WithField adds a single field to the logger
func (l *Logger) WithField(key string, value interface{}) zerolog.Logger {
	return l.logger.With().Interface(key, value).Logger()
}

// WithComponent returns a logger tagged with a component name. Every
// engine component gets its own tagged logger at construction time.
func (l *Logger) WithComponent(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

// SetLogLevel dynamically changes the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) error {
	level, err := zerolog.ParseLevel(string(logLevel))
	if err != nil {
		return fmt.Errorf("invalid log level: %s", logLevel)
	}

	l.logger = l.logger.Level(level)
	return nil
}
