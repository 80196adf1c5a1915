// Package logging provides structured logging for the refinery service.
// It wraps zap with a dual console/file core and size-based log rotation.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger and tees output to both console and a rotated
// log file.
//
// Example:
//
//	logger, err := NewLogger(true, "refinery.log")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("host ready", zap.String("backend", info))
type Logger struct {
	zap           *zap.Logger
	sugar         *zap.SugaredLogger
	isDevelopment bool
	logFilePath   string
}

// NewLogger creates a Logger configured for the given environment.
//
// In development mode the console output is colored and human readable and
// the level is debug; otherwise both outputs are JSON at info level. The log
// file rotates at 100MB with 5 backups kept for 30 days.
func NewLogger(isDevelopment bool, logFilePath string) (*Logger, error) {
	level := zapcore.InfoLevel
	if isDevelopment {
		level = zapcore.DebugLevel
	}

	core, err := NewMultiCore(level, logFilePath, isDevelopment)
	if err != nil {
		return nil, fmt.Errorf("failed to create log core: %w", err)
	}

	zapLogger := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	)

	return &Logger{
		zap:           zapLogger,
		sugar:         zapLogger.Sugar(),
		isDevelopment: isDevelopment,
		logFilePath:   logFilePath,
	}, nil
}

// NewLoggerWithConfig creates a Logger with custom file rotation settings.
// For the default rotation policy, use NewLogger instead.
func NewLoggerWithConfig(isDevelopment bool, logFilePath string, fileConfig FileWriterConfig) (*Logger, error) {
	level := zapcore.InfoLevel
	if isDevelopment {
		level = zapcore.DebugLevel
	}

	fileWriter := NewFileWriterWithConfig(logFilePath, fileConfig)
	consoleWriter := zapcore.AddSync(&consoleWriterSync{})
	core := NewMultiCoreWithWriters(level, consoleWriter, fileWriter, isDevelopment)

	zapLogger := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	)

	return &Logger{
		zap:           zapLogger,
		sugar:         zapLogger.Sugar(),
		isDevelopment: isDevelopment,
		logFilePath:   logFilePath,
	}, nil
}

// consoleWriterSync wraps os.Stdout to implement zapcore.WriteSyncer.
type consoleWriterSync struct{}

func (c *consoleWriterSync) Write(p []byte) (n int, err error) {
	return fmt.Print(string(p))
}

func (c *consoleWriterSync) Sync() error {
	return nil
}

// Sync flushes any buffered log entries. Call before exiting.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs a message at DebugLevel with optional structured fields.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

// Info logs a message at InfoLevel with optional structured fields.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

// Warn logs a message at WarnLevel with optional structured fields.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, fields...)
}

// Error logs a message at ErrorLevel with optional structured fields.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, fields...)
}

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, fields...)
}

// Debugw logs a message at DebugLevel with loosely-typed key-value pairs.
func (l *Logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Infow logs a message at InfoLevel with loosely-typed key-value pairs.
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warnw logs a message at WarnLevel with loosely-typed key-value pairs.
func (l *Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Errorw logs a message at ErrorLevel with loosely-typed key-value pairs.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Infof logs a formatted message at InfoLevel.
func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

// Warnf logs a formatted message at WarnLevel.
func (l *Logger) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(template, args...)
}

// Errorf logs a formatted message at ErrorLevel.
func (l *Logger) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(template, args...)
}

// Fatalf logs a formatted message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatalf(template string, args ...interface{}) {
	l.sugar.Fatalf(template, args...)
}

// With creates a child logger whose entries all carry the given fields.
// Useful for per-request context such as prediction IDs.
func (l *Logger) With(fields ...zap.Field) *Logger {
	newZap := l.zap.With(fields...)
	return &Logger{
		zap:           newZap,
		sugar:         newZap.Sugar(),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Named adds a sub-logger name that appears in log output.
//
// Example:
//
//	httpLogger := logger.Named("http")
//	hostLogger := logger.Named("host")
func (l *Logger) Named(name string) *Logger {
	newZap := l.zap.Named(name)
	return &Logger{
		zap:           newZap,
		sugar:         newZap.Sugar(),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Sugar returns the underlying sugared logger.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// Zap returns the underlying zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// IsDevelopment reports whether the logger runs in development mode.
func (l *Logger) IsDevelopment() bool {
	return l.isDevelopment
}

// LogFilePath returns the path to the log file.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}
