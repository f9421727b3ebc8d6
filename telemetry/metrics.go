// Package telemetry adapts OpenTelemetry metrics to core.MetricsRegistry:
// counters, histograms and gauges created lazily and cached by name so
// repeated calls don't re-register instruments with the meter.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/keyrotate/keyrotate/core"
)

// OtelMetrics implements core.MetricsRegistry on top of an
// otel/metric.Meter. Instrument creation can fail; a failure is logged and
// that call records nothing rather than panicking the caller. A failed
// instrument is not cached, so the next call for the same name tries to
// create it again (and logs again if that fails).
type OtelMetrics struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64ObservableGauge
	gaugeVals  map[string]float64

	logger core.Logger
}

// NewOtelMetrics builds a registry backed by meter. Pass
// otel.GetMeterProvider().Meter("keyrotate") for production use.
func NewOtelMetrics(meter metric.Meter, logger core.Logger) *OtelMetrics {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &OtelMetrics{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64ObservableGauge),
		gaugeVals:  make(map[string]float64),
		logger:     logger,
	}
}

func (m *OtelMetrics) Counter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Float64Counter(name)
		if err != nil {
			m.logger.Error("failed to create counter", map[string]interface{}{"name": name, "error": err.Error()})
			return
		}
		m.counters[name] = c
	}
	c.Add(context.Background(), 1, metric.WithAttributes(attrsFromLabels(labels)...))
}

func (m *OtelMetrics) Histogram(name string, value float64, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.histograms[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name)
		if err != nil {
			m.logger.Error("failed to create histogram", map[string]interface{}{"name": name, "error": err.Error()})
			return
		}
		m.histograms[name] = h
	}
	h.Record(context.Background(), value, metric.WithAttributes(attrsFromLabels(labels)...))
}

// Gauge records the latest value for name; it is exposed to OTel via an
// observable callback registered the first time the name is seen.
func (m *OtelMetrics) Gauge(name string, value float64, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gaugeVals[name] = value
	if _, ok := m.gauges[name]; ok {
		return
	}

	g, err := m.meter.Float64ObservableGauge(name, metric.WithFloat64Callback(
		func(_ context.Context, obs metric.Float64Observer) error {
			m.mu.Lock()
			v := m.gaugeVals[name]
			m.mu.Unlock()
			obs.Observe(v)
			return nil
		},
	))
	if err != nil {
		m.logger.Error("failed to create gauge", map[string]interface{}{"name": name, "error": err.Error()})
		return
	}
	m.gauges[name] = g
}

func attrsFromLabels(labels []string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		out = append(out, attribute.String(labels[i], labels[i+1]))
	}
	return out
}
