package core

import (
	"testing"
	"time"
)

func TestNewSettingsDefaults(t *testing.T) {
	s := newSettings(nil)
	if s.logger == nil || s.clock == nil || s.metrics == nil {
		t.Fatalf("defaults missing: %+v", s)
	}
	if s.clock.Now().IsZero() {
		t.Fatalf("system clock returned zero time")
	}
}

func TestOptionsOverride(t *testing.T) {
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := NewExpvarMetricsRecorder("")
	s := newSettings([]Option{
		WithLogger(NewNoopLogger()),
		WithClock(ClockFunc(func() time.Time { return fixed })),
		WithMetricsRecorder(rec),
	})
	if s.clock.Now() != fixed {
		t.Fatalf("clock override ignored")
	}
	if s.metrics != MetricsRecorder(rec) {
		t.Fatalf("metrics override ignored")
	}
}

func TestOptionsIgnoreNil(t *testing.T) {
	s := newSettings([]Option{nil, WithLogger(nil), WithClock(nil), WithMetricsRecorder(nil)})
	if s.logger == nil || s.clock == nil || s.metrics == nil {
		t.Fatalf("nil option clobbered defaults")
	}
}
