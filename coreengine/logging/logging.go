// Package logging adapts charmbracelet/log to the agents.Logger interface.
package logging

import (
	"io"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
)

// Config configures the charm logger.
type Config struct {
	Level        string // DEBUG, INFO, WARN, ERROR
	JSON         bool
	Output       io.Writer
	ReportCaller bool
	TimeFormat   string
}

// DefaultConfig returns text logging at INFO to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      "INFO",
		Output:     os.Stderr,
		TimeFormat: "15:04:05",
	}
}

// ParseLevel maps a level name to a charm level. Unknown names map to INFO.
func ParseLevel(level string) charmlog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return charmlog.DebugLevel
	case "WARN", "WARNING":
		return charmlog.WarnLevel
	case "ERROR":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// Logger implements agents.Logger on top of a charm logger.
type Logger struct {
	charm *charmlog.Logger
}

// New creates a Logger from cfg.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	charm := charmlog.NewWithOptions(cfg.Output, charmlog.Options{
		ReportCaller:    cfg.ReportCaller,
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		Level:           ParseLevel(cfg.Level),
	})
	if cfg.JSON {
		charm.SetFormatter(charmlog.JSONFormatter)
	} else {
		charm.SetFormatter(charmlog.TextFormatter)
	}
	return &Logger{charm: charm}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...any) { l.charm.Debug(msg, fields...) }

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...any) { l.charm.Info(msg, fields...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...any) { l.charm.Warn(msg, fields...) }

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...any) { l.charm.Error(msg, fields...) }

// Bind returns a child logger carrying fields on every entry.
func (l *Logger) Bind(fields ...any) agents.Logger {
	return &Logger{charm: l.charm.With(fields...)}
}
