package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus instrumentation. It is
// constructed once at startup and shared by every connection and
// handler. Each instance carries its own registry rather than the global
// default, so multiple ServerContexts (as in tests) never collide over
// the same metric names.
type Metrics struct {
	registry *prometheus.Registry

	connectionsActive   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	framesReceived      prometheus.Counter
	framesRejected      *prometheus.CounterVec
	handlerDuration     *prometheus.HistogramVec
	directivesSent      *prometheus.CounterVec
}

// NewMetrics constructs a fresh Metrics instance registered against its
// own private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	fac := promauto.With(reg)

	return &Metrics{
		registry: reg,
		connectionsActive: fac.NewGauge(prometheus.GaugeOpts{
			Namespace: "palisade",
			Name:      "connections_active",
			Help:      "Number of currently registered connections.",
		}),
		connectionsAccepted: fac.NewCounter(prometheus.CounterOpts{
			Namespace: "palisade",
			Name:      "connections_accepted_total",
			Help:      "Total connections accepted since startup.",
		}),
		connectionsClosed: fac.NewCounter(prometheus.CounterOpts{
			Namespace: "palisade",
			Name:      "connections_closed_total",
			Help:      "Total connections closed since startup.",
		}),
		framesReceived: fac.NewCounter(prometheus.CounterOpts{
			Namespace: "palisade",
			Name:      "frames_received_total",
			Help:      "Total frames successfully decoded from the wire.",
		}),
		framesRejected: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: "palisade",
			Name:      "frames_rejected_total",
			Help:      "Frames rejected by the codec, labeled by reason.",
		}, []string{"reason"}),
		handlerDuration: fac.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "palisade",
			Name:      "handler_duration_seconds",
			Help:      "Handler execution time, labeled by opcode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"opcode"}),
		directivesSent: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: "palisade",
			Name:      "directives_sent_total",
			Help:      "Directives sent to clients, labeled by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) ConnectionOpened() {
	m.connectionsActive.Inc()
	m.connectionsAccepted.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.connectionsActive.Dec()
	m.connectionsClosed.Inc()
}

func (m *Metrics) FrameReceived() {
	m.framesReceived.Inc()
}

func (m *Metrics) FrameRejected(reason string) {
	m.framesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) DirectiveSent(reason string) {
	m.directivesSent.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveHandler(opcode string, seconds float64) {
	m.handlerDuration.WithLabelValues(opcode).Observe(seconds)
}

// Handler returns the HTTP handler the metrics server exposes at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
