package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics tracks storage facade operations. A nil *StoreMetrics is valid
// and records nothing.
type StoreMetrics struct {
	operationsTotal      *prometheus.CounterVec
	operationDuration    *prometheus.HistogramVec
	flushedEntriesTotal  *prometheus.CounterVec
	decodeFallbacksTotal *prometheus.CounterVec
	backendFallback      *prometheus.GaugeVec
}

// NewStoreMetrics initializes store metrics with the collector
func NewStoreMetrics(collector *Collector) *StoreMetrics {
	return &StoreMetrics{
		operationsTotal: collector.RegisterCounter(
			MetricOperationsTotal,
			"Total store operations by operation and status",
			[]string{LabelOperation, LabelStatus},
		),
		operationDuration: collector.RegisterHistogram(
			MetricOperationDuration,
			"Duration of store operations in seconds",
			[]string{LabelOperation},
			[]float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		),
		flushedEntriesTotal: collector.RegisterCounter(
			MetricFlushedEntriesTotal,
			"Total entries removed by flush, by reason",
			[]string{LabelReason},
		),
		decodeFallbacksTotal: collector.RegisterCounter(
			MetricDecodeFallbacksTotal,
			"Total reads that returned the stored value because decoding failed",
			[]string{LabelReason},
		),
		backendFallback: collector.RegisterGauge(
			MetricBackendFallback,
			"1 when the in-memory store replaced an unusable backend",
			[]string{LabelEngine},
		),
	}
}

// RecordOperation records the outcome and latency of one operation
func (m *StoreMetrics) RecordOperation(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFlushed records entries removed by one flush pass
func (m *StoreMetrics) RecordFlushed(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.flushedEntriesTotal.WithLabelValues(reason).Add(float64(count))
}

// RecordDecodeFallback records a read that fell back to the stored value
func (m *StoreMetrics) RecordDecodeFallback(reason string) {
	if m == nil {
		return
	}
	m.decodeFallbacksTotal.WithLabelValues(reason).Inc()
}

// SetBackendFallback records whether the configured engine was replaced
func (m *StoreMetrics) SetBackendFallback(engine string, fallback bool) {
	if m == nil {
		return
	}
	v := 0.0
	if fallback {
		v = 1
	}
	m.backendFallback.WithLabelValues(engine).Set(v)
}
