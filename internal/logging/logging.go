// Package logging provides structured logging for diskconv.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/faize-ai/diskconv/internal/config"
)

// ParseLevel maps a config level name onto a zap level. Unknown names map to info.
func ParseLevel(name string) zapcore.Level {
	switch name {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New creates a zap logger from configuration. When debug is set the level is
// forced to debug regardless of cfg.Level. Log lines go to stderr unless
// cfg.File is set, keeping stdout free for the task list and summaries.
// The returned close func flushes the logger and releases the file sink.
func New(cfg config.Logging, debug bool) (*zap.Logger, func() error, error) {
	level := ParseLevel(cfg.Level)
	if debug {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	if cfg.File == "" {
		log := zap.New(zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level))
		return log, func() error {
			// Syncing a terminal fails on some platforms
			_ = log.Sync()
			return nil
		}, nil
	}

	file, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, err
	}
	log := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(file), level))
	return log, func() error {
		_ = log.Sync()
		return file.Close()
	}, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
