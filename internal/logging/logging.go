// Package logging builds the two loggers used across the coordinator:
// zap for bootstrap and bus plumbing, slog for the saga consumers.
package logging

import (
	"log/slog"
	"os"

	"go.uber.org/zap"
)

// NewZap builds a production zap logger tagged with the service name.
func NewZap(serviceName string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("service", serviceName))
}

// NewSlog builds a JSON slog logger tagged with the service name, level
// controlled by LOG_LEVEL (DEBUG|INFO|WARN|ERROR, default INFO).
func NewSlog(serviceName string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level(os.Getenv("LOG_LEVEL"))}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler).With(slog.String("service", serviceName))
}

func level(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
