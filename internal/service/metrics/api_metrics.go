package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// APIMetrics tracks status API latency and errors per endpoint.
type APIMetrics struct {
	Latency *prometheus.HistogramVec
	Errors  *prometheus.CounterVec
}

func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	f := promauto.With(reg)
	return &APIMetrics{
		Latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "signalgate",
				Subsystem: "api",
				Name:      "latency_seconds",
				Help:      "Latency of status API endpoints",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		Errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "signalgate",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Errors by status API endpoint",
			},
			[]string{"endpoint"},
		),
	}
}

// Observe records one request. Nil receivers are ignored.
func (m *APIMetrics) Observe(endpoint string, start time.Time, failed bool) {
	if m == nil {
		return
	}
	m.Latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if failed {
		m.Errors.WithLabelValues(endpoint).Inc()
	}
}
