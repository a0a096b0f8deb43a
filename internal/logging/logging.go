// Package logging builds the logr.Logger shared by all components, backed
// by a log/slog text or JSON handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"

	"github.com/born-ml/bcnn/internal/errdefs"
)

// Config selects the handler and minimum level.
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig logs info and above as text.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

// Validate checks level and format.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
		return nil
	}
	return errdefs.Invalid("unknown log format %q", c.Format)
}

// ParseLevel maps a level name to a slog level. "debug" enables logr
// verbosity V(1) through V(4).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, errdefs.Invalid("unknown log level %q", s)
}

// New returns a logger writing to w (stderr when nil).
func New(cfg Config, w io.Writer) (logr.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return logr.Discard(), err
	}
	level, _ := ParseLevel(cfg.Level)
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return logr.FromSlogHandler(handler), nil
}
