// Package logging configures the process-wide slog logger. The TUI
// owns the terminal, so interactive runs log to a rotated file instead
// of stderr.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the logging block of the user config file.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Options selects the sink and stamps records with app identity.
type Options struct {
	App     string
	Version string
	// FileOnly forces the file sink even when no file is configured;
	// used when stderr belongs to the terminal UI.
	FileOnly bool
}

// Init installs the default slog logger and returns a close function
// for the underlying sink.
func Init(cfg Config, opts Options) (func() error, error) {
	if opts.App == "" {
		opts.App = "muxpane"
	}
	level := parseLevel(cfg.Level)

	var writer io.Writer = os.Stderr
	closeFn := func() error { return nil }
	file := strings.TrimSpace(cfg.File)
	if file == "" && opts.FileOnly {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("logging: resolve log dir: %w", err)
		}
		file = filepath.Join(dir, opts.App, opts.App+".log")
	}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    defaultInt(cfg.MaxSizeMB, 10),
			MaxBackups: defaultInt(cfg.MaxBackups, 3),
			Compress:   true,
		}
		writer = rotated
		closeFn = rotated.Close
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}
	logger := slog.New(handler).With(
		slog.String("app", opts.App),
		slog.String("version", opts.Version),
	)
	slog.SetDefault(logger)
	return closeFn, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func defaultInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
