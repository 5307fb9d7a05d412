package proxy

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stubmill/simbridge/simbridge-srv/config"
)

// Metrics exposes proxy counters on the admin API's /metrics endpoint.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	journalEntries  prometheus.Gauge
}

// NewMetrics builds and registers the proxy metrics. Returns nil when
// metrics are disabled.
func NewMetrics(cfg *config.MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "simbridge"
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "requests_total",
				Help:      "Total number of proxied requests by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "request_duration_seconds",
				Help:      "Duration of proxied request handling",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		journalEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "journal_entries",
				Help:      "Number of entries currently in the journal",
			},
		),
	}
	registry.MustRegister(m.requestsTotal, m.requestDuration, m.journalEntries)
	return m
}

// Registry returns the prometheus registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) observeRequest(mode Mode, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(string(mode), outcome).Inc()
	m.requestDuration.WithLabelValues(string(mode)).Observe(seconds)
}

func (m *Metrics) setJournalEntries(n int) {
	if m == nil {
		return
	}
	m.journalEntries.Set(float64(n))
}
