// Package promadapters provides a Prometheus implementation of accountstore.MetricsCollector.
package promadapters

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

// MetricsCollector records durations as histograms, counters as counters and values as gauges.
// Each metric is registered on first use with the label names seen on that call; later calls
// with a different label set are dropped and counted in DroppedObservations.
type MetricsCollector struct {
	registerer prometheus.Registerer
	namespace  string

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	dropped    int
}

// Option configures a MetricsCollector.
type Option func(*MetricsCollector)

// WithNamespace prefixes every metric name with namespace.
func WithNamespace(namespace string) Option {
	return func(m *MetricsCollector) {
		m.namespace = namespace
	}
}

// NewMetricsCollector creates a collector that registers its metrics on registerer.
func NewMetricsCollector(registerer prometheus.Registerer, options ...Option) *MetricsCollector {
	m := &MetricsCollector{
		registerer: registerer,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// RecordDuration observes duration in seconds.
func (m *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.histograms[metric]
	if !ok {
		vec = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: m.namespace, Name: metric, Help: metric, Buckets: prometheus.DefBuckets},
			labelNames(labels),
		)
		if !m.register(vec) {
			return
		}
		m.histograms[metric] = vec
	}

	observer, err := vec.GetMetricWith(labels)
	if err != nil {
		m.dropped++
		return
	}

	observer.Observe(duration.Seconds())
}

// IncrementCounter adds one to a counter.
func (m *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.counters[metric]
	if !ok {
		vec = prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: m.namespace, Name: metric, Help: metric},
			labelNames(labels),
		)
		if !m.register(vec) {
			return
		}
		m.counters[metric] = vec
	}

	counter, err := vec.GetMetricWith(labels)
	if err != nil {
		m.dropped++
		return
	}

	counter.Inc()
}

// RecordValue sets a gauge to value.
func (m *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.gauges[metric]
	if !ok {
		vec = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: m.namespace, Name: metric, Help: metric},
			labelNames(labels),
		)
		if !m.register(vec) {
			return
		}
		m.gauges[metric] = vec
	}

	gauge, err := vec.GetMetricWith(labels)
	if err != nil {
		m.dropped++
		return
	}

	gauge.Set(value)
}

// DroppedObservations returns how many observations could not be recorded.
func (m *MetricsCollector) DroppedObservations() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.dropped
}

// register must be called with mu held.
func (m *MetricsCollector) register(collector prometheus.Collector) bool {
	if err := m.registerer.Register(collector); err != nil {
		m.dropped++
		return false
	}

	return true
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

var _ accountstore.MetricsCollector = (*MetricsCollector)(nil)
