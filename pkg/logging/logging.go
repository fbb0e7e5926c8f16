// Package logging builds the structured logger shared by all commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrick/logrotate/rotator"
	"github.com/ssargent/protodemo/pkg/config"
)

// ParseLevel maps a level name to a slog level. "warning" is accepted as
// an alias of "warn".
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", name)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a text logger writing to w and, when cfg.File is set, to a
// size-rotated log file. An invalid level falls back to info with a
// warning. The closer must be called on shutdown.
func New(cfg config.Logging, w io.Writer) (*slog.Logger, io.Closer, error) {
	level, levelErr := ParseLevel(cfg.Level)

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rot, err := newRotator(cfg)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(w, rot)
		closer = rot
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	if levelErr != nil {
		logger.Warn("falling back to info", "error", levelErr)
	}
	return logger, closer, nil
}

func newRotator(cfg config.Logging) (*rotator.Rotator, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	maxSizeKB := cfg.MaxSizeKB
	if maxSizeKB <= 0 {
		maxSizeKB = 10 * 1024
	}
	maxRolls := cfg.MaxRolls
	if maxRolls <= 0 {
		maxRolls = 3
	}

	rot, err := rotator.New(cfg.File, maxSizeKB, false, maxRolls)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return rot, nil
}
