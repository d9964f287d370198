package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the daemon's log output. An empty File.Path logs to stderr.
type Config struct {
	Level  string     `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string     `mapstructure:"format" json:"format"` // text, json, color
	Time   bool       `mapstructure:"time" json:"time"`     // include timestamps in color output
	File   FileConfig `mapstructure:"file" json:"file"`
}

// FileConfig follows lumberjack semantics.
type FileConfig struct {
	Path       string `mapstructure:"path" json:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days"`
	Compress   bool   `mapstructure:"compress" json:"compress"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Writer returns the rotating file writer, or stderr when no path is set.
func (c Config) Writer() io.WriteCloser {
	if c.File.Path == "" {
		return struct {
			io.Writer
			io.Closer
		}{os.Stderr, nopCloser{}}
	}
	return &lj.Logger{
		Filename:   c.File.Path,
		MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.File.Compress,
	}
}

// ParseLevel maps a level name to slog. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New builds the process logger. The returned closer releases the log file.
func New(c Config) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	w := c.Writer()
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(c.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "color":
		h = NewColorTextHandler(w, opts, c.Time)
	default:
		_ = w.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", c.Format)
	}
	return slog.New(h), w, nil
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
