// Package logging provides the pluggable log sink referenced throughout the
// core (spec §7): every internal error is logged with a level, and the sink
// itself is swappable by the embedding application.
package logging

import (
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Level mirrors the handful of severities the core actually emits at:
// INFO for protocol-level drops, ERROR for transport failures.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the sink every package in this module logs through. Field values
// are passed as alternating key/value pairs, same calling convention as
// charmbracelet/log's With.
type Logger interface {
	Log(level Level, msg string, kv ...any)
	With(kv ...any) Logger
}

type charmLogger struct {
	l *charmlog.Logger
}

// New builds a Logger backed by github.com/charmbracelet/log, writing to w
// with the given minimum level. Callers embedding this module in a CLI
// supply their own io.Writer (file, journal, etc); w defaults to os.Stderr
// when nil.
func New(w io.Writer, min Level) Logger {
	if w == nil {
		w = os.Stderr
	}
	l := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		ReportCaller:    true,
	})
	l.SetLevel(toCharmLevel(min))
	return &charmLogger{l: l}
}

func (c *charmLogger) Log(level Level, msg string, kv ...any) {
	switch level {
	case LevelDebug:
		c.l.Debug(msg, kv...)
	case LevelInfo:
		c.l.Info(msg, kv...)
	case LevelWarn:
		c.l.Warn(msg, kv...)
	default:
		c.l.Error(msg, kv...)
	}
}

func (c *charmLogger) With(kv ...any) Logger {
	return &charmLogger{l: c.l.With(kv...)}
}

func toCharmLevel(l Level) charmlog.Level {
	switch l {
	case LevelDebug:
		return charmlog.DebugLevel
	case LevelInfo:
		return charmlog.InfoLevel
	case LevelWarn:
		return charmlog.WarnLevel
	default:
		return charmlog.ErrorLevel
	}
}

// Discard is a Logger that drops everything; useful as a default for
// packages constructed without an explicit sink, and in tests.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Log(Level, string, ...any) {}
func (d discardLogger) With(...any) Logger       { return d }
