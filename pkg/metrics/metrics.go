// Package metrics holds the Prometheus instruments exported by the daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry

	ScrubRequests  *prometheus.CounterVec
	Findings       *prometheus.CounterVec
	CapHits        prometheus.Counter
	InputBytes     prometheus.Histogram
	ScrubDuration  prometheus.Histogram
	ConfigReloads  *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	InFlightScrubs prometheus.Gauge
}

// New registers the instruments on a fresh registry, together with the
// Go runtime and process collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ScrubRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrub_requests_total",
			Help:      "Scrub invocations by mode and outcome.",
		}, []string{"mode", "outcome"}),
		Findings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Resolved findings by category.",
		}, []string{"category"}),
		CapHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_cap_hits_total",
			Help:      "Invocations that reached the candidate cap.",
		}),
		InputBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "input_bytes",
			Help:      "Size of scrubbed inputs in bytes.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 9),
		}),
		ScrubDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrub_duration_ms",
			Help:      "Engine time per invocation in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
		ConfigReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reloads by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		InFlightScrubs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scrubs_in_flight",
			Help:      "Scrub invocations currently running.",
		}),
	}
}

// ObserveScrub records one successful invocation.
func (m *Metrics) ObserveScrub(mode string, inputBytes int, byType map[string]int, capHit bool, d time.Duration) {
	m.ScrubRequests.WithLabelValues(mode, "ok").Inc()
	m.InputBytes.Observe(float64(inputBytes))
	m.ScrubDuration.Observe(float64(d.Microseconds()) / 1000)
	for category, n := range byType {
		m.Findings.WithLabelValues(category).Add(float64(n))
	}
	if capHit {
		m.CapHits.Inc()
	}
}

// ObserveScrubError records a rejected invocation.
func (m *Metrics) ObserveScrubError(mode string) {
	m.ScrubRequests.WithLabelValues(mode, "error").Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
