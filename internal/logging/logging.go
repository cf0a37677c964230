package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// New builds the process logger. Levels: silent, error, info, debug.
func New(level string) (*zap.Logger, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "silent":
		return zap.NewNop(), nil
	case "debug":
		return zap.NewDevelopment()
	case "error":
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
		return cfg.Build()
	case "info":
		return zap.NewProduction()
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}
}
