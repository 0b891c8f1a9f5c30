package logging

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger instance
func InitGlobalLogger(level LogLevel, format string) *Logger {
	if format == "json" {
		globalLogger = NewLogger(level, os.Stdout)
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout}
		globalLogger = NewLogger(level, &output)
	}

	return globalLogger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		globalLogger = NewLogger(InfoLevel, os.Stdout)
	}
	return globalLogger
}

// Quick logging functions using the global logger

// Debug logs a debug message
func Debug(msg string) {
	GetGlobalLogger().logger.Debug().Msg(msg)
}

// Debugf logs a formatted debug message
func Debugf(format string, args ...interface{}) {
	GetGlobalLogger().logger.Debug().Msg(fmt.Sprintf(format, args...))
}

// Info logs an info message
func Info(msg string) {
	GetGlobalLogger().logger.Info().Msg(msg)
}

// Infof logs a formatted info message
func Infof(format string, args ...interface{}) {
	GetGlobalLogger().logger.Info().Msg(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warning message
func Warnf(format string, args ...interface{}) {
	GetGlobalLogger().logger.Warn().Msg(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error message
func Errorf(format string, args ...interface{}) {
	GetGlobalLogger().logger.Error().Msg(fmt.Sprintf(format, args...))
}
