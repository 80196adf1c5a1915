package logging

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation policy for log files.
const (
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
	DefaultCompress   = true
)

// FileWriterConfig holds log rotation settings. Zero values fall back to
// the defaults above.
type FileWriterConfig struct {
	// MaxSizeMB is the file size in megabytes that triggers rotation.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to retain.
	MaxBackups int

	// MaxAgeDays is the retention period for rotated files.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool

	// LocalTime uses local time in backup file names instead of UTC.
	LocalTime bool
}

// DefaultFileWriterConfig returns the default rotation policy.
func DefaultFileWriterConfig() FileWriterConfig {
	return FileWriterConfig{
		MaxSizeMB:  DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAgeDays: DefaultMaxAgeDays,
		Compress:   DefaultCompress,
		LocalTime:  false,
	}
}

// NewFileWriter creates a zapcore.WriteSyncer that writes to a file with
// the default rotation policy.
func NewFileWriter(path string) zapcore.WriteSyncer {
	return NewFileWriterWithConfig(path, DefaultFileWriterConfig())
}

// NewFileWriterWithConfig creates a zapcore.WriteSyncer backed by
// lumberjack with the given rotation settings.
func NewFileWriterWithConfig(path string, config FileWriterConfig) zapcore.WriteSyncer {
	cfg := applyFileWriterDefaults(config)

	logger := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  cfg.LocalTime,
	}

	return zapcore.AddSync(logger)
}

// applyFileWriterDefaults fills in zero values with defaults.
// Compress cannot be defaulted here since false is a valid setting;
// DefaultFileWriterConfig carries the true default instead.
func applyFileWriterDefaults(config FileWriterConfig) FileWriterConfig {
	result := config

	if result.MaxSizeMB == 0 {
		result.MaxSizeMB = DefaultMaxSizeMB
	}
	if result.MaxBackups == 0 {
		result.MaxBackups = DefaultMaxBackups
	}
	if result.MaxAgeDays == 0 {
		result.MaxAgeDays = DefaultMaxAgeDays
	}

	return result
}
