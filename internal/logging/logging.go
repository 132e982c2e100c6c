// Package logging sets up the daemon's zerolog logger: a short human console
// format on stderr, or JSON lines when writing to a file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "15:04:05.000"

type Config struct {
	Level string
	File  string
}

// New builds the root logger. The returned closer is nil when logging to stderr.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	SetLevel(cfg.Level)

	if cfg.File == "" {
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTimeFormat}
		return zerolog.New(w).With().Timestamp().Logger(), nil, nil
	}

	dir := filepath.Dir(cfg.File)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
	}
	return zerolog.New(f).With().Timestamp().Caller().Logger(), f, nil
}

// SetLevel applies a level name globally. Unknown names fall back to info.
func SetLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return lvl
}
