package fastclose

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records deferred releases in Prometheus.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	submitted *prometheus.CounterVec
	completed *prometheus.CounterVec
	pending   *prometheus.GaugeVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates release metrics and registers them with reg.
// If reg is nil, the metrics are created but not registered.
//
// NewMetrics panics if the metrics are already registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		submitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastclose_releases_submitted_total",
				Help: "Total number of handles submitted for release by backend",
			},
			[]string{"backend"},
		),
		completed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastclose_releases_completed_total",
				Help: "Total number of completed releases by backend and result",
			},
			[]string{"backend", "result"}, // "ok", "error"
		),
		pending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fastclose_releases_pending",
				Help: "Number of submitted releases that have not completed yet",
			},
			[]string{"backend"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fastclose_release_duration_seconds",
				Help:    "Time spent closing a handle",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs .. ~2.6s
			},
			[]string{"backend"},
		),
	}
}

func (m *Metrics) onSubmit(backend string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(backend).Inc()
	m.pending.WithLabelValues(backend).Inc()
}

func (m *Metrics) onRelease(backend string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.completed.WithLabelValues(backend, result).Inc()
	m.pending.WithLabelValues(backend).Dec()
	m.duration.WithLabelValues(backend).Observe(d.Seconds())
}
