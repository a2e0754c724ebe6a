// pkg/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger for structured logging
type Logger struct {
	*zap.SugaredLogger
	level zap.AtomicLevel
}

// Options configures a logger
type Options struct {
	Level       string // debug, info, warn, error
	Environment string // development adds caller info, production also writes to a file
	LogDir      string // directory for the production log file
}

// New creates a new structured logger
func New(opts Options) *Logger {
	level := zap.NewAtomicLevelAt(parseLevel(opts.Level))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var output io.Writer = os.Stdout

	// In production, write to file and stdout
	if opts.Environment == "production" && opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0755); err == nil {
			logFile := filepath.Join(opts.LogDir, "shorturl.log")
			file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err == nil {
				output = io.MultiWriter(os.Stdout, file)
			}
		}
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(output),
		level,
	)

	var zapLogger *zap.Logger
	if opts.Environment == "development" {
		zapLogger = zap.New(core, zap.AddCaller(), zap.Development())
	} else {
		zapLogger = zap.New(core)
	}

	return &Logger{
		SugaredLogger: zapLogger.Sugar(),
		level:         level,
	}
}

// NewFromCore wraps an existing zap core, used by tests with observer cores
func NewFromCore(core zapcore.Core) *Logger {
	return &Logger{
		SugaredLogger: zap.New(core).Sugar(),
		level:         zap.NewAtomicLevelAt(zap.DebugLevel),
	}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{
		SugaredLogger: zap.NewNop().Sugar(),
		level:         zap.NewAtomicLevel(),
	}
}

// WithFields adds structured fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		zapFields = append(zapFields, k, v)
	}

	return &Logger{
		SugaredLogger: l.SugaredLogger.With(zapFields...),
		level:         l.level,
	}
}

// SetLevel dynamically changes the log level
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(parseLevel(level))
}

// Level returns the current level name
func (l *Logger) Level() string {
	return l.level.Level().String()
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

// GormWriter adapts the logger to gorm's logger.Writer interface
type GormWriter struct {
	Logger *Logger
}

// Printf implements gorm logger.Writer
func (w GormWriter) Printf(format string, args ...interface{}) {
	w.Logger.Info(fmt.Sprintf(format, args...))
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
