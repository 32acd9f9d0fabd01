package worker

import (
	"github.com/mcproxy/mcproxy/backend"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics re-exposes the teacher's stats.go shape (pool/client counters
// and gauges) as prometheus.Collectors, grounded on the retrieved sibling
// proxy's metrics package and nabbar-golib's prometheus usage, per
// SPEC_FULL.md §6's ambient-stack expansion.
type Metrics struct {
	ParseErrors     prometheus.Counter
	RoutingErrors   prometheus.Counter
	Timeouts        *prometheus.CounterVec
	Desyncs         *prometheus.CounterVec
	ConnectErrors   *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	BreakerOpen     *prometheus.GaugeVec
	DispatchSeconds *prometheus.HistogramVec
}

// NewMetrics registers all collectors on reg and returns the handle used
// to record events elsewhere in the worker.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "parse_errors_total",
			Help:      "Client command lines rejected by the request parser.",
		}),
		RoutingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "routing_errors_total",
			Help:      "Routing computations that terminated with an error.",
		}),
		Timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "backend_timeouts_total",
			Help:      "Backend response timeouts, per backend address.",
		}, []string{"backend"}),
		Desyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "backend_desyncs_total",
			Help:      "Backend response stream desyncs, per backend address.",
		}, []string{"backend"}),
		ConnectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcproxy",
			Name:      "backend_connect_errors_total",
			Help:      "Backend connect failures, per backend address.",
		}, []string{"backend"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mcproxy",
			Name:      "backend_queue_depth",
			Help:      "Current FIFO depth, per backend address.",
		}, []string{"backend"}),
		BreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mcproxy",
			Name:      "backend_circuit_breaker_open",
			Help:      "1 if the backend's circuit breaker is open, else 0.",
		}, []string{"backend"}),
		DispatchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcproxy",
			Name:      "backend_dispatch_seconds",
			Help:      "Time from PendingIO submission to a completed backend response, per backend address.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
	}

	reg.MustRegister(
		m.ParseErrors, m.RoutingErrors, m.Timeouts, m.Desyncs,
		m.ConnectErrors, m.QueueDepth, m.BreakerOpen, m.DispatchSeconds,
	)
	return m
}

// Sample polls live gauges from each backend. Call periodically (e.g. on
// every /metrics scrape, via a prometheus.Collector wrapper, or on a
// ticker) since Backend exposes no push-based hook for these.
func (m *Metrics) Sample(backends []*backend.Backend) {
	for _, b := range backends {
		m.QueueDepth.WithLabelValues(b.Addr()).Set(float64(b.QueueDepth()))

		open := 0.0
		if b.BreakerState().String() == "open" {
			open = 1.0
		}
		m.BreakerOpen.WithLabelValues(b.Addr()).Set(open)
	}
}
