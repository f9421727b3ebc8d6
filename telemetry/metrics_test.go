package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/stretchr/testify/require"
)

func TestOtelMetrics_DoesNotPanicOnNoopMeter(t *testing.T) {
	m := NewOtelMetrics(noop.NewMeterProvider().Meter("keyrotate"), nil)

	require.NotPanics(t, func() {
		m.Counter("keyrotate_execute_total", "result", "success")
		m.Histogram("keyrotate_execute_duration_ms", 12.5)
		m.Gauge("keyrotate_bulkhead_in_flight", 3)
		m.Gauge("keyrotate_bulkhead_in_flight", 4)
	})
}

func TestOtelMetrics_CachesInstrumentsByName(t *testing.T) {
	m := NewOtelMetrics(noop.NewMeterProvider().Meter("keyrotate"), nil)
	m.Counter("c", "a", "1")
	m.Counter("c", "a", "2")
	require.Len(t, m.counters, 1)
}
