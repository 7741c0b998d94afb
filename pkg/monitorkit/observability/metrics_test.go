package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest creates a test meter provider and returns a function to collect metrics.
func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	originalProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	cleanup := func() {
		otel.SetMeterProvider(originalProvider)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	}

	return reader, cleanup
}

// collectMetrics collects all metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)
	return &rm
}

// findMetric finds a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordAcquire(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records acquisition count", func(t *testing.T) {
		m.RecordAcquire(ctx, "mon-1", false, 0)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "monitorkit.monitor.acquisitions")
		require.NotNil(t, metric)

		sum, ok := metric.Data.(metricdata.Sum[int64])
		require.True(t, ok, "Expected Sum type")
		require.NotEmpty(t, sum.DataPoints)
	})

	t.Run("records entry wait only when contended", func(t *testing.T) {
		m.RecordAcquire(ctx, "mon-2", true, 30*time.Millisecond)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "monitorkit.monitor.entry_wait_ms")
		require.NotNil(t, metric)

		hist, ok := metric.Data.(metricdata.Histogram[float64])
		require.True(t, ok, "Expected Histogram type")

		// Only the contended acquisition lands a datapoint.
		found := false
		for _, dp := range hist.DataPoints {
			for _, attr := range dp.Attributes.ToSlice() {
				if attr.Key == "monitor_id" {
					assert.Equal(t, "mon-2", attr.Value.AsString())
					found = true
				}
			}
		}
		assert.True(t, found, "Expected datapoint for mon-2")
	})
}

func TestRecordWait(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordWait(ctx, "mon-1", "notified", 20*time.Millisecond)
	m.RecordWait(ctx, "mon-1", "timed_out", 100*time.Millisecond)

	rm := collectMetrics(t, reader)

	waits := findMetric(rm, "monitorkit.monitor.waits")
	require.NotNil(t, waits)
	sum, ok := waits.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type")

	// One datapoint per outcome attribute.
	outcomes := map[string]bool{}
	for _, dp := range sum.DataPoints {
		for _, attr := range dp.Attributes.ToSlice() {
			if attr.Key == "outcome" {
				outcomes[attr.Value.AsString()] = true
			}
		}
	}
	assert.True(t, outcomes["notified"])
	assert.True(t, outcomes["timed_out"])

	latency := findMetric(rm, "monitorkit.monitor.wait_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "Expected Histogram type")
	assert.NotEmpty(t, hist.DataPoints)
}

func TestRecordNotify(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordNotify(context.Background(), "mon-1", 3)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "monitorkit.monitor.notified")
	require.NotNil(t, metric)

	sum, ok := metric.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type")
	require.NotEmpty(t, sum.DataPoints)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func TestRecordDeadlock(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordDeadlock(context.Background(), 2)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "monitorkit.deadlock.reports")
	require.NotNil(t, metric)

	sum, ok := metric.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type")
	require.NotEmpty(t, sum.DataPoints)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}

	// All methods are safe no-ops.
	ctx := context.Background()
	m.RecordAcquire(ctx, "mon-1", true, time.Millisecond)
	m.RecordWait(ctx, "mon-1", "notified", time.Millisecond)
	m.RecordNotify(ctx, "mon-1", 1)
	m.RecordDeadlock(ctx, 2)
}
