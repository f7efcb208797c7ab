package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/c360/ed247/pkg/logging"
)

func setupLogger(cfg *CLIConfig) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(logging.Config{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		FilePath: cfg.LogFile,
	})
	if err != nil {
		return nil, nil, err
	}
	return logger.With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	), closer, nil
}
