package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports scope operation outcomes as Prometheus
// collectors: a counter vector partitioned by operation and status, and a
// duration histogram per operation.
type PrometheusMetricsRecorder struct {
	results   *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder constructs a recorder and registers its
// collectors with the supplied registerer. A nil registerer falls back to
// prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusMetricsRecorder{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unitcore",
			Name:      "scope_operations_total",
			Help:      "Unit-of-work scope operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "unitcore",
			Name:      "scope_operation_duration_seconds",
			Help:      "Unit-of-work scope operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if err := reg.Register(rec.results); err != nil {
		return nil, err
	}
	if err := reg.Register(rec.durations); err != nil {
		return nil, err
	}
	return rec, nil
}

// Observe records a scope operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.results.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}
