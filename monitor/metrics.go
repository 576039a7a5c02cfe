package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/amartya2002/liveness-monitor/uptime"
)

const namespace = "liveness_monitor"

// Probe outcome labels.
const (
	outcomeSuccess          = "success"
	outcomeHTTPFailure      = "http_failure"
	outcomeTransportFailure = "transport_failure"
)

// Metrics are the monitor's Prometheus instruments.
type Metrics struct {
	registry prometheus.Gatherer

	probes       *prometheus.CounterVec
	probeLatency prometheus.Histogram
	failures     prometheus.Gauge
	restarts     prometheus.Counter
	serviceOps   *prometheus.CounterVec
	state        *prometheus.GaugeVec
}

// NewMetrics registers the instruments on a fresh registry, which is also
// returned by Gatherer for the /metrics endpoint.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return newMetrics(reg, reg)
}

func newMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: gatherer,
		probes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Health probes by outcome",
		}, []string{"outcome"}),
		probeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Health probe latency",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 100},
		}),
		failures: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Consecutive probe failures since the service was last healthy",
		}),
		restarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Service start commands issued after a failed health check",
		}),
		serviceOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_operations_total",
			Help:      "Service and process control calls by operation and result",
		}, []string{"op", "result"}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current monitor state, 0 otherwise",
		}, []string{"state"}),
	}
}

// Gatherer exposes the registry the instruments live on.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

func (m *Metrics) observeProbe(res uptime.Result) {
	outcome := outcomeSuccess
	switch {
	case res.Success:
	case res.HasStatus():
		outcome = outcomeHTTPFailure
	default:
		outcome = outcomeTransportFailure
	}
	m.probes.WithLabelValues(outcome).Inc()
	m.probeLatency.Observe(res.Latency.Seconds())
}

func (m *Metrics) setFailures(n int) { m.failures.Set(float64(n)) }

func (m *Metrics) serviceOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.serviceOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) setState(current string) {
	for _, s := range AllStates {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}
