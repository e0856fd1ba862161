// Package metrics collects per-run filter statistics in a private
// prometheus registry, written out in the node exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "jacoco_filter"

// Metrics holds the collectors of one run. A nil *Metrics discards every
// observation.
type Metrics struct {
	registry *prometheus.Registry

	ClassesTotal  *prometheus.CounterVec
	ProbesMarked  prometheus.Counter
	RunDuration   *prometheus.HistogramVec
	RecordEntries prometheus.Gauge
	CacheLookups  *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ClassesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classes_total",
			Help:      "Classes processed by outcome",
		}, []string{"outcome"}),
		ProbesMarked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_marked_total",
			Help:      "Probes changed from missed to hit",
		}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of filter run phases",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"phase"}),
		RecordEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_entries",
			Help:      "Class entries in the written record",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_cache_lookups_total",
			Help:      "Probe cache lookups by result",
		}, []string{"result"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveClass counts one class outcome.
func (m *Metrics) ObserveClass(outcome string) {
	if m == nil {
		return
	}
	m.ClassesTotal.WithLabelValues(outcome).Inc()
}

// AddProbesMarked adds n newly hit probes.
func (m *Metrics) AddProbesMarked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ProbesMarked.Add(float64(n))
}

// ObservePhase records the duration of a run phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// SetRecordEntries sets the entry count of the written record.
func (m *Metrics) SetRecordEntries(n int) {
	if m == nil {
		return
	}
	m.RecordEntries.Set(float64(n))
}

// ObserveCache counts a probe cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// WriteTextfile writes every metric to path for the node exporter textfile
// collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
