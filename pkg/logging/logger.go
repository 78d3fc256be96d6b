package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the root logger for the configured environment.
// Local development gets a human-readable console logger; everything else
// gets production JSON output.
func NewLogger(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "local" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
