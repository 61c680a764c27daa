// Package logging builds the structured *zap.Logger every long-lived core
// component takes a dependency on (SPEC_FULL ambient stack: "no
// log.Printf/stdlib logging").
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the logger's level and encoding.
type Config struct {
	Level   string // debug, info, warn, error
	JSON    bool
	Service string
}

func DefaultConfig() Config {
	return Config{Level: "info", JSON: true, Service: "exchange-core"}
}

// New builds a zap.Logger per cfg, falling back to zap.NewDevelopment if
// the production encoder config fails to build (matches the teacher's
// logging.go fallback behaviour).
func New(cfg Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	if cfg.JSON {
		zc.Encoding = "json"
	} else {
		zc.Encoding = "console"
	}
	zc.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	zc.InitialFields = map[string]any{
		"service": cfg.Service,
		"pid":     os.Getpid(),
	}

	log, err := zc.Build()
	if err != nil {
		return zap.NewDevelopment()
	}
	return log, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
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
