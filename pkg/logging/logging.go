// Package logging provides structured logging for augur components.
//
// The default logger writes human-readable text to stderr so command output
// on stdout stays clean for piping. An optional file sink writes JSON lines
// for later inspection, one file per service per day.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Level aliases slog levels so callers do not import slog for configuration.
type Level = slog.Level

// Supported levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level to emit. Defaults to Info.
	Level Level

	// LogDir enables file logging when non-empty. The directory is created
	// if needed.
	LogDir string

	// Service names the component, used in the log file name.
	Service string

	// Writer overrides the default stderr sink (used by tests).
	Writer io.Writer
}

// Logger wraps slog.Logger with an optional file sink that must be closed.
type Logger struct {
	*slog.Logger
	file *os.File
}

// Default returns a stderr text logger at Info level.
func Default() *Logger {
	return New(Config{})
}

// New builds a logger from the given config.
func New(cfg Config) *Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	l := &Logger{}
	handlers := []slog.Handler{slog.NewTextHandler(w, opts)}

	if cfg.LogDir != "" {
		if f, err := openLogFile(cfg.LogDir, cfg.Service); err == nil {
			l.file = f
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
		}
		// File sink failures fall back to stderr-only rather than erroring:
		// logging must never block the pipeline.
	}

	if len(handlers) == 1 {
		l.Logger = slog.New(handlers[0])
	} else {
		l.Logger = slog.New(multiHandler(handlers))
	}
	return l
}

// Close flushes and closes the file sink, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func openLogFile(dir, service string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if service == "" {
		service = "augur"
	}
	name := service + "_" + time.Now().UTC().Format("2006-01-02") + ".log"
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}
