package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatalf("expected a generated export name")
	}
	ctx := context.Background()
	rec.Observe(ctx, "commit", true, 10*time.Millisecond)
	rec.Observe(ctx, "commit", true, 5*time.Millisecond)
	rec.Observe(ctx, "commit", false, time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	snap := rec.Snapshot()
	if snap.DurationsMS["commit"] != 16 {
		t.Fatalf("durations = %v", snap.DurationsMS)
	}
	if snap.Results["commit"]["success"] != 2 || snap.Results["commit"]["error"] != 1 {
		t.Fatalf("results = %v", snap.Results)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "commit", true, 2*time.Millisecond)
	rec.Observe(ctx, "rollback", false, time.Millisecond)

	fams, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var counters *dto.MetricFamily
	for _, f := range fams {
		if f.GetName() == "unitcore_scope_operations_total" {
			counters = f
		}
	}
	if counters == nil {
		t.Fatalf("operations counter not exported")
	}
	if len(counters.GetMetric()) != 2 {
		t.Fatalf("expected two labeled series, got %d", len(counters.GetMetric()))
	}
}

func TestPrometheusMetricsRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetricsRecorder(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}
