package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/c360/blockflow/config"
	"github.com/c360/blockflow/runlog"
)

func setupLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}

// withRunLog tees logger into the run log subject of the named program
func withRunLog(logger *slog.Logger, pub runlog.Publisher, programName string, cfg config.RunLogConfig) (*slog.Logger, *runlog.Handler) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	h := runlog.NewHandler(logger.Handler(), pub, programName, runlog.WithLevel(level))
	return slog.New(h), h
}
