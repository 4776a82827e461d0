// Package metrics exposes delivery, token and HTTP metrics in Prometheus
// format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/priyanshudevsingh/quickmailer/internal/credential"
	"github.com/priyanshudevsingh/quickmailer/internal/delivery"
)

const namespace = "quickmailer"

// Metrics holds the application collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	recipients    *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	tokenOutcomes *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers all collectors, including Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		recipients: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipients_total",
			Help:      "Recipients processed by bulk runs.",
		}, []string{"mode", "result"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bulk_run_duration_seconds",
			Help:      "Duration of background bulk runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		}, []string{"mode", "status"}),
		tokenOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_checks_total",
			Help:      "Mailbox token checks by outcome.",
		}, []string{"outcome"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		}, []string{"method", "route", "status"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Recipient implements delivery.Recorder.
func (m *Metrics) Recipient(mode delivery.Mode, success bool) {
	result := "failed"
	if success {
		result = "success"
	}
	m.recipients.WithLabelValues(string(mode), result).Inc()
}

// Run implements delivery.Recorder.
func (m *Metrics) Run(mode delivery.Mode, status delivery.RunStatus, elapsed time.Duration) {
	m.runDuration.WithLabelValues(string(mode), string(status)).Observe(elapsed.Seconds())
}

// TokenOutcome is a credential.WithObserver callback.
func (m *Metrics) TokenOutcome(o credential.Outcome) {
	m.tokenOutcomes.WithLabelValues(string(o)).Inc()
}

// ObserveHTTP records one served request. route is the matched route
// pattern, not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
