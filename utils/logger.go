package utils

import (
	"log"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// InitializeLogger sets up the process logger. Production uses JSON output at
// the configured level; everything else gets the colored development encoder.
func InitializeLogger(production bool, level string) *zap.Logger {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			log.Printf("unknown LOG_LEVEL %q, defaulting to info", level)
		}
	}
	cfg.Level = lvl

	l, err := cfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger = l
	zap.ReplaceGlobals(l)
	return l
}

// GetLogger returns the process logger, falling back to a development logger
// when InitializeLogger was never called (tests, scripts).
func GetLogger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			InitializeLogger(false, "debug")
		}
	})
	return logger
}
