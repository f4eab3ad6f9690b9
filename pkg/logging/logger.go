package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds a zap logger for the given environment. "local" and
// "development" get the human-readable development config, everything else
// gets production JSON output.
func New(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	switch env {
	case "local", "dev", "development":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
