// Package logger builds the structured logger of the demo server.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes how the logger should behave.
type Config struct {
	Level       string       `yaml:"level"`
	Format      string       `yaml:"format"`
	OutputPaths []string     `yaml:"outputs"`
	Rotate      RotateConfig `yaml:"rotate"`
}

// RotateConfig controls rotation of file outputs.
type RotateConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// Logger is a slog.Logger owning its file outputs.
type Logger struct {
	*slog.Logger
	closers []io.Closer
}

// New builds a logger from cfg. File outputs are rotated with lumberjack.
func New(cfg Config) (*Logger, error) {
	l := &Logger{}

	writers := make([]io.Writer, 0, len(cfg.OutputPaths))
	for _, out := range cfg.OutputPaths {
		w, closer, err := openWriter(out, cfg.Rotate)
		if err != nil {
			_ = l.Close()
			return nil, err
		}
		if closer != nil {
			l.closers = append(l.closers, closer)
		}
		writers = append(writers, w)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	l.Logger = slog.New(newHandler(cfg.Format, writer, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}))
	return l, nil
}

// NewWithWriter builds a logger writing to w. It is meant for tests and
// tools that capture output.
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	return &Logger{Logger: slog.New(newHandler(cfg.Format, w, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}))}
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(name string) *slog.Logger {
	return l.With(slog.String("component", name))
}

// Close flushes and closes file outputs.
func (l *Logger) Close() error {
	var err error
	for _, c := range l.closers {
		err = errors.Join(err, c.Close())
	}
	l.closers = nil
	return err
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func openWriter(path string, rotate RotateConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotate.MaxSizeMB,
		MaxBackups: rotate.MaxBackups,
		MaxAge:     rotate.MaxAgeDays,
		Compress:   rotate.Compress,
	}
	return w, w, nil
}

// ParseLevel maps a level name to a slog level. Unknown names give Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
