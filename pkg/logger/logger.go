// Package logger wraps zap with the fields and defaults the API uses.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// NewFromConfig builds a JSON logger at level, or a colored console logger
// when development is set. Unknown levels fall back to info.
func NewFromConfig(level string, development bool) (*Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	}
	cfg.Level = lvl

	z, err := cfg.Build(zap.Fields(zap.String("service", "clarify-api")))
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: z}, nil
}

// New wraps an existing zap logger, e.g. one built on an observer core in tests.
func New(z *zap.Logger) *Logger {
	return &Logger{Logger: z}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

var global = defaultGlobal()

func defaultGlobal() *Logger {
	l, err := NewFromConfig(os.Getenv("CLARIFY_LOG_LEVEL"), os.Getenv("CLARIFY_ENV") == "development")
	if err != nil {
		return Nop()
	}
	return l
}

// Global returns the process-wide logger.
func Global() *Logger {
	return global
}

// SetGlobal replaces the process-wide logger and zap's globals.
func SetGlobal(l *Logger) {
	global = l
	zap.ReplaceGlobals(l.Logger)
}
