package prometheus

import (
	"time"

	"github.com/jrsteele09/go-bank-dashboard/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var _ metrics.Collector = (*PrometheusCollector)(nil)

// PrometheusCollector implements metrics.Collector for Prometheus.
type PrometheusCollector struct {
	apiCalls     *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	apiRetries   *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	circuitState *prometheus.GaugeVec
}

// NewPrometheusCollector creates a new Prometheus metrics collector.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		apiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_calls_total",
				Help:      "Banking API attempts by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		apiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_call_duration_seconds",
				Help:      "Banking API attempt latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		apiRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_retries_total",
				Help:      "Banking API retries by endpoint and reason",
			},
			[]string{"endpoint", "reason"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Access token refreshes by outcome",
			},
			[]string{"outcome"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
	}
}

// Register registers all metrics with the given registerer.
func (pc *PrometheusCollector) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.apiCalls,
		pc.apiLatency,
		pc.apiRetries,
		pc.refreshes,
		pc.circuitState,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (pc *PrometheusCollector) RecordAPICall(endpoint string, outcome string, duration time.Duration) {
	pc.apiCalls.WithLabelValues(endpoint, outcome).Inc()
	pc.apiLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordRetry(endpoint string, reason string) {
	pc.apiRetries.WithLabelValues(endpoint, reason).Inc()
}

func (pc *PrometheusCollector) RecordRefresh(outcome string) {
	pc.refreshes.WithLabelValues(outcome).Inc()
}

func (pc *PrometheusCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
}
