// Package server provides a factory for creating the engine from a
// configuration file.
package server

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/txn2/sam/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

// NewLogger builds the slog logger described by cfg, writing to w.
func NewLogger(cfg platform.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LoadConfig loads and validates the configuration file.
func LoadConfig(path string) (*platform.Config, error) {
	cfg, err := platform.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewWithConfig creates a platform from cfg with a logger writing to logOut.
// Options override components built from cfg.
func NewWithConfig(cfg *platform.Config, logOut io.Writer, opts ...platform.Option) (*platform.Platform, error) {
	logger := NewLogger(cfg.Logging, logOut)
	all := append([]platform.Option{
		platform.WithConfig(cfg),
		platform.WithLogger(logger.With("app", cfg.AppName, "version", Version)),
	}, opts...)

	p, err := platform.New(all...)
	if err != nil {
		return nil, fmt.Errorf("creating platform: %w", err)
	}
	return p, nil
}
