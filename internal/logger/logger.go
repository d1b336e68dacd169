// Package logger builds the application's *slog.Logger.
//
// Logs go to stdout when ToStdout is set, otherwise they are appended to
// <Dir>/recipe-list.log. Format is "text" or "json".
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the log file created under Config.Dir.
const FileName = "recipe-list.log"

type Config struct {
	Level    string // debug, info, warn, error
	Format   string // text or json
	ToStdout bool
	Dir      string
}

// New returns the logger and a close function for the underlying file.
// The close function is a no-op when logging to stdout.
func New(cfg Config) (*slog.Logger, func() error, error) {
	var (
		out     io.Writer = os.Stdout
		closeFn           = func() error { return nil }
	)

	if !cfg.ToStdout {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("logger: creating %s: %w", cfg.Dir, err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.Dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("logger: opening log file: %w", err)
		}
		out, closeFn = f, f.Close
	}

	return slog.New(NewHandler(out, cfg.Level, cfg.Format)), closeFn, nil
}

// NewHandler builds a text or JSON handler writing to w.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
