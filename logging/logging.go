// Package logging builds the zap logger shared by all monitor components.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	console  *bool
	files    []string
	disabled bool
	level    string
	format   string
}

type Option func(*config)

// LogConsole toggles stdout output. Console is on unless set to false.
func LogConsole(enabled bool) Option {
	return func(c *config) { c.console = &enabled }
}

// LogFile adds a file sink. Repeatable.
func LogFile(path string) Option {
	return func(c *config) { c.files = append(c.files, path) }
}

// DisableLogs turns logging off entirely.
func DisableLogs() Option {
	return func(c *config) { c.disabled = true }
}

// WithLevel accepts DEBUG, INFO, WARN or ERROR (case-insensitive).
func WithLevel(level string) Option {
	return func(c *config) { c.level = level }
}

// WithFormat accepts "json" or "console".
func WithFormat(format string) Option {
	return func(c *config) { c.format = format }
}

// New builds a logger from options. It never returns nil; a broken
// configuration falls back to a console logger.
func New(opts ...Option) *zap.Logger {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.disabled {
		return zap.NewNop()
	}

	console := true
	if c.console != nil {
		console = *c.console
	}

	var paths []string
	seen := map[string]struct{}{}
	if console {
		paths = append(paths, "stdout")
		seen["stdout"] = struct{}{}
	}
	for _, f := range c.files {
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		paths = append(paths, f)
	}
	if len(paths) == 0 {
		return defaultConsoleLogger()
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = paths
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(c.level))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(c.format, "console") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	l, err := cfg.Build()
	if err != nil {
		return defaultConsoleLogger()
	}
	return l
}

// ParseLevel converts a level name into a zapcore.Level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func defaultConsoleLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
