package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	framesTotal   *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	reconnects    *prometheus.CounterVec
	subscriptions prometheus.Gauge
	lastPrice     *prometheus.GaugeVec
	lambda        *prometheus.GaugeVec
	coherence     *prometheus.GaugeVec
	threshold     *prometheus.GaugeVec
	decisions     *prometheus.CounterVec
	orders        *prometheus.CounterVec
	messagesSent  *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		framesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_stream_frames_total",
				Help: "Inbound stream frames by dispatched kind",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		reconnects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_stream_reconnects_total",
				Help: "Reconnect attempts by outcome",
			},
			[]string{"outcome"},
		),
		subscriptions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalgate_stream_subscriptions",
				Help: "Active stream subscriptions",
			},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalgate_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		lambda: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalgate_signal_lambda",
				Help: "Fused signal value of the last cycle",
			},
			[]string{"symbol"},
		),
		coherence: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalgate_signal_coherence",
				Help: "Detector coherence of the last cycle",
			},
			[]string{"symbol"},
		),
		threshold: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalgate_applied_threshold",
				Help: "Adaptive coherence threshold applied in the last cycle",
			},
			[]string{"symbol"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_decisions_total",
				Help: "Decision gate outcomes",
			},
			[]string{"symbol", "action", "reason"},
		),
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_orders_total",
				Help: "Execution results by status",
			},
			[]string{"symbol", "status"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_messages_sent_total",
				Help: "Telemetry records sent to a backend",
			},
			[]string{"backend", "symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalgate_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordFrame(kind string) {
	r.framesTotal.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordReconnect(outcome string) {
	r.reconnects.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordSubscriptions(n int) {
	r.subscriptions.Set(float64(n))
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordSignal(symbol string, lambda, coherence, threshold float64) {
	r.lambda.WithLabelValues(symbol).Set(lambda)
	r.coherence.WithLabelValues(symbol).Set(coherence)
	r.threshold.WithLabelValues(symbol).Set(threshold)
}

func (r *Recorder) RecordDecision(symbol, action, reason string) {
	r.decisions.WithLabelValues(symbol, action, reason).Inc()
}

func (r *Recorder) RecordOrder(symbol, status string) {
	r.orders.WithLabelValues(symbol, status).Inc()
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything. Used where metrics are optional.
type Nop struct{}

func (Nop) RecordFrame(string)                             {}
func (Nop) RecordError(string)                             {}
func (Nop) RecordReconnect(string)                         {}
func (Nop) RecordSubscriptions(int)                        {}
func (Nop) RecordLastPrice(string, float64)                {}
func (Nop) RecordSignal(string, float64, float64, float64) {}
func (Nop) RecordDecision(string, string, string)          {}
func (Nop) RecordOrder(string, string)                     {}
func (Nop) RecordMessageSent(string, string)               {}
func (Nop) RecordLatency(string, float64)                  {}
