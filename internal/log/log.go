// Package log provides the ambient structured-logging convention used
// across this module: a thin wrapper over log/slog so every package logs
// through the same *Logger type without importing slog directly, and so a
// host program can supply its own slog.Handler.
//
// The compiler core itself does not log (kernel compilation, launch and
// substitution failures surface as errors, per the error handling design);
// this package exists for the ambient CLI and driver layers, which do.
package log

import (
	"io"
	"log/slog"
)

// Logger is the logging handle threaded through this module's non-core
// packages (the CUDA driver binding, the demo CLI).
type Logger struct {
	s *slog.Logger
}

// Discard returns a Logger that drops everything written to it. This is the
// default for any package that doesn't have one explicitly wired in, so the
// library stays silent unless a host opts in.
func Discard() *Logger {
	return &Logger{s: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// New wraps an existing slog.Logger.
func New(s *slog.Logger) *Logger {
	if s == nil {
		return Discard()
	}
	return &Logger{s: s}
}

func (l *Logger) Debug(msg string, args ...any) { l.s.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.s.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.s.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.s.Error(msg, args...) }

// With returns a Logger that always includes the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s.With(args...)}
}
