package options

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch outcomes reported to Metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Metrics observes option fetches.
type Metrics interface {
	ObserveFetch(field, outcome string, elapsed time.Duration)
}

// MetricsFunc adapts a function into Metrics.
type MetricsFunc func(field, outcome string, elapsed time.Duration)

// ObserveFetch delegates to the function.
func (fn MetricsFunc) ObserveFetch(field, outcome string, elapsed time.Duration) {
	fn(field, outcome, elapsed)
}

type noopMetrics struct{}

func (noopMetrics) ObserveFetch(string, string, time.Duration) {}

// PrometheusMetrics records fetch counts and latencies.
type PrometheusMetrics struct {
	fetches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the collectors and registers them with reg
// when it is non-nil.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formflow",
			Name:      "option_fetch_total",
			Help:      "Option fetches by field and outcome",
		}, []string{"field", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "formflow",
			Name:      "option_fetch_duration_seconds",
			Help:      "Option fetch latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"field"}),
	}
	if reg != nil {
		for _, collector := range []prometheus.Collector{m.fetches, m.duration} {
			if err := reg.Register(collector); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveFetch implements Metrics.
func (m *PrometheusMetrics) ObserveFetch(field, outcome string, elapsed time.Duration) {
	m.fetches.WithLabelValues(field, outcome).Inc()
	m.duration.WithLabelValues(field).Observe(elapsed.Seconds())
}

// Collectors exposes the underlying collectors.
func (m *PrometheusMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.fetches, m.duration}
}
