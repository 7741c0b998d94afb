package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records monitor-core metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordAcquire records an acquisition, whether it contended, and
	// how long the thread waited in the entry set.
	RecordAcquire(ctx context.Context, monitorID string, contended bool, waited time.Duration)

	// RecordWait records a completed wait with its outcome
	// ("notified", "timed_out", "interrupted") and duration.
	RecordWait(ctx context.Context, monitorID string, outcome string, duration time.Duration)

	// RecordNotify records a notify/notifyAll and how many threads it
	// moved to the entry set.
	RecordNotify(ctx context.Context, monitorID string, woken int)

	// RecordDeadlock records a detected wait-for cycle of the given
	// length.
	RecordDeadlock(ctx context.Context, cycleLen int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	acquisitions metric.Int64Counter
	entryWait    metric.Float64Histogram
	waits        metric.Int64Counter
	waitLatency  metric.Float64Histogram
	notified     metric.Int64Counter
	deadlocks    metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the default OTel metrics instance.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("monitorkit")

	acquisitions, err := meter.Int64Counter("monitorkit.monitor.acquisitions",
		metric.WithDescription("Number of monitor acquisitions"),
	)
	if err != nil {
		return nil, err
	}

	entryWait, err := meter.Float64Histogram("monitorkit.monitor.entry_wait_ms",
		metric.WithDescription("Time spent blocked in the entry set in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	waits, err := meter.Int64Counter("monitorkit.monitor.waits",
		metric.WithDescription("Number of completed waits by outcome"),
	)
	if err != nil {
		return nil, err
	}

	waitLatency, err := meter.Float64Histogram("monitorkit.monitor.wait_ms",
		metric.WithDescription("Wait duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	notified, err := meter.Int64Counter("monitorkit.monitor.notified",
		metric.WithDescription("Number of threads moved from wait set to entry set"),
	)
	if err != nil {
		return nil, err
	}

	deadlocks, err := meter.Int64Counter("monitorkit.deadlock.reports",
		metric.WithDescription("Number of detected wait-for cycles"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		acquisitions: acquisitions,
		entryWait:    entryWait,
		waits:        waits,
		waitLatency:  waitLatency,
		notified:     notified,
		deadlocks:    deadlocks,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordAcquire records an acquisition.
func (m *otelMetrics) RecordAcquire(ctx context.Context, monitorID string, contended bool, waited time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("monitor_id", monitorID),
		attribute.Bool("contended", contended),
	}
	m.acquisitions.Add(ctx, 1, metric.WithAttributes(attrs...))
	if contended {
		m.entryWait.Record(ctx, float64(waited.Milliseconds()), metric.WithAttributes(attrs...))
	}
}

// RecordWait records a completed wait.
func (m *otelMetrics) RecordWait(ctx context.Context, monitorID string, outcome string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("monitor_id", monitorID),
		attribute.String("outcome", outcome),
	}
	m.waits.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.waitLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordNotify records a notify.
func (m *otelMetrics) RecordNotify(ctx context.Context, monitorID string, woken int) {
	attrs := []attribute.KeyValue{
		attribute.String("monitor_id", monitorID),
	}
	m.notified.Add(ctx, int64(woken), metric.WithAttributes(attrs...))
}

// RecordDeadlock records a detected cycle.
func (m *otelMetrics) RecordDeadlock(ctx context.Context, cycleLen int) {
	attrs := []attribute.KeyValue{
		attribute.Int("cycle_len", cycleLen),
	}
	m.deadlocks.Add(ctx, 1, metric.WithAttributes(attrs...))
}
