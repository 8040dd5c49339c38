// Package logging provides the process-wide structured logger.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	global *zap.Logger
)

// Init builds the process-wide logger. dev=true selects a human-readable
// console encoder; otherwise JSON. Safe to call multiple times; only the
// first call takes effect.
func Init(dev bool) *zap.Logger {
	once.Do(func() {
		var cfg zap.Config
		if dev {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		logger, err := cfg.Build()
		if err != nil {
			// Fall back to a no-frills logger rather than panic at startup.
			logger = zap.NewExample()
			logger.Warn("falling back to example logger", zap.Error(err))
		}
		global = logger
	})
	return global
}

// L returns the process-wide logger, initializing one on first use if Init
// was never called explicitly (console encoding when GOAPPLY_ENV=dev, JSON
// otherwise).
func L() *zap.Logger {
	if global == nil {
		return Init(os.Getenv("GOAPPLY_ENV") == "dev")
	}
	return global
}

// Sync flushes any buffered log entries. Call from main before exit.
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}

// With returns a child logger with the given fields, a thin convenience
// wrapper so call sites don't import zap directly everywhere.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}
