package core

import (
	"context"
	"log/slog"
	"time"
)

// Logger is the minimal structured logging surface used by the engine.
// Arguments follow the slog convention of alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewNoopLogger returns a logger that discards everything.
func NewNoopLogger() Logger { return noopLogger{} }

type slogLogger struct{ l *slog.Logger }

// NewSlogLogger adapts a *slog.Logger to the engine's Logger interface.
// A nil argument falls back to slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

// Clock supplies the current time, injected for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now invokes the wrapped function.
func (f ClockFunc) Now() time.Time { return f() }

func systemClock() Clock {
	return ClockFunc(func() time.Time { return time.Now().UTC() })
}

// MetricsRecorder observes the outcome and duration of scope operations
// (commit, rollback, nested merges).
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Option customizes coordinator construction.
type Option func(*settings)

type settings struct {
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:  noopLogger{},
		clock:   systemClock(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// WithLogger overrides the engine logger.
func WithLogger(l Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the engine clock.
func WithClock(c Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetricsRecorder overrides the metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *settings) {
		if m != nil {
			s.metrics = m
		}
	}
}
