// Package metrics exposes Prometheus collectors for candidate production and
// scanning. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "handlegen"

// Metrics groups the collectors registered for one service.
type Metrics struct {
	registry *prometheus.Registry

	probes           *prometheus.CounterVec
	generated        *prometheus.CounterVec
	batchesCompleted prometheus.Counter
	producerFailures prometheus.Counter
	exclusionSize    prometheus.Gauge
	currentBatch     prometheus.Gauge
	probeLatency     prometheus.Histogram
}

// New registers the collectors on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		probes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "probes_total",
			Help:      "Oracle probes by outcome status",
		}, []string{"status"}),
		generated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "candidates_total",
			Help:      "Candidates written to batches by rendering template",
		}, []string{"template"}),
		batchesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "completed_total",
			Help:      "Batches finalised with a completion marker",
		}),
		producerFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "producer_failures_total",
			Help:      "Batch producers aborted by an error",
		}),
		exclusionSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "exclusion",
			Name:      "size",
			Help:      "Identifiers in the exclusion set",
		}),
		currentBatch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "current_batch",
			Help:      "Batch number under the scan checkpoint",
		}),
		probeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "probe_duration_seconds",
			Help:      "Oracle probe latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 7, 10},
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProbe counts one probe outcome and its latency.
func (m *Metrics) ObserveProbe(status string, seconds float64) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(status).Inc()
	m.probeLatency.Observe(seconds)
}

// CandidateGenerated counts one candidate rendered by template.
func (m *Metrics) CandidateGenerated(template string) {
	if m == nil {
		return
	}
	m.generated.WithLabelValues(template).Inc()
}

// BatchCompleted counts a finalised batch.
func (m *Metrics) BatchCompleted() {
	if m == nil {
		return
	}
	m.batchesCompleted.Inc()
}

// ProducerFailed counts an aborted producer.
func (m *Metrics) ProducerFailed() {
	if m == nil {
		return
	}
	m.producerFailures.Inc()
}

// SetExclusionSize sets the exclusion set gauge.
func (m *Metrics) SetExclusionSize(n int) {
	if m == nil {
		return
	}
	m.exclusionSize.Set(float64(n))
}

// SetCurrentBatch sets the checkpoint batch gauge.
func (m *Metrics) SetCurrentBatch(n uint64) {
	if m == nil {
		return
	}
	m.currentBatch.Set(float64(n))
}
