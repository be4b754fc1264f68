// Package logger builds the slog loggers the engine uses everywhere. The
// console handler colorizes by level so warnings and errors stand out when a
// sync run scrolls by, and highlights run-completion lines.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// NewDefaultLogger returns a colorized logger writing to stderr at the given
// level.
func NewDefaultLogger(level slog.Level) *slog.Logger {
	return NewLogger(os.Stderr, level)
}

// NewLogger returns a colorized logger writing to w at the given level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(w, &slog.HandlerOptions{Level: level}))
}
