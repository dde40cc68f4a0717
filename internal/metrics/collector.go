package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector wraps a Prometheus registerer and provides metric registration helpers.
// Registering a metric that already exists returns the existing one, so several
// stores can share one registerer.
type Collector struct {
	registerer prometheus.Registerer
	registry   *prometheus.Registry
}

// NewCollector creates a new metrics collector with its own Prometheus registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	return &Collector{
		registerer: registry,
		registry:   registry,
	}
}

// NewCollectorFor creates a collector that registers into reg
func NewCollectorFor(reg prometheus.Registerer) *Collector {
	c := &Collector{registerer: reg}
	if registry, ok := reg.(*prometheus.Registry); ok {
		c.registry = registry
	}
	return c
}

// RegisterCounter registers a counter metric with the collector
func (c *Collector) RegisterCounter(name, help string, labels []string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	return register(c.registerer, vec)
}

// RegisterGauge registers a gauge metric with the collector
func (c *Collector) RegisterGauge(name, help string, labels []string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	return register(c.registerer, vec)
}

// RegisterHistogram registers a histogram metric with the collector
func (c *Collector) RegisterHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	opts := prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	}
	if buckets == nil {
		opts.Buckets = prometheus.DefBuckets
	}
	return register(c.registerer, prometheus.NewHistogramVec(opts, labels))
}

// GetRegistry returns the Prometheus registry for the HTTP handler, or nil
// when the collector wraps a registerer that is not a *prometheus.Registry
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
