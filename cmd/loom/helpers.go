package main

import (
	"fmt"
	"log/slog"
	"os"

	"loom/internal/config"
	"loom/internal/logging"
)

func loadConfig(path string) (*config.Config, error) {
	cfg, cfgPath, exists, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if path != "" && !exists {
		return nil, fmt.Errorf("config file not found at %s", cfgPath)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup failed, continuing to stderr: %v\n", err)
		return slog.Default()
	}
	return logger
}

func formatMillis(ms int64) string {
	return fmt.Sprintf("%.3fs", float64(ms)/1000)
}
