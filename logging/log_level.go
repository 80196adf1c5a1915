package logging

import (
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// LogLevel aliases zapcore.Level for callers that do not import zapcore.
type LogLevel = zapcore.Level

// Log level constants for convenience.
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

// ParseLogLevel parses a log level from an environment variable, returning
// the default when the variable is empty or invalid.
//
// Example:
//
//	level := ParseLogLevel("REFINERY_LOG_LEVEL", zapcore.InfoLevel)
func ParseLogLevel(envVarName string, defaultLevel zapcore.Level) zapcore.Level {
	value := os.Getenv(envVarName)
	if value == "" {
		return defaultLevel
	}
	return ParseLogLevelString(value, defaultLevel)
}

// ParseLogLevelString parses a log level string. Parsing is
// case-insensitive; valid levels are debug, info, warn, warning, error and
// fatal.
func ParseLogLevelString(levelStr string, defaultLevel zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return defaultLevel
	}
}
