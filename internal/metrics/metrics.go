package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gateway Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusegate",
			Name:      "search_requests_total",
			Help:      "Total number of search requests by result code",
		},
		[]string{"code"},
	)

	SourceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fusegate",
			Name:      "source_request_duration_seconds",
			Help:      "Upstream source call duration in seconds, failures included",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"source", "status"},
	)

	SourceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusegate",
			Name:      "source_errors_total",
			Help:      "Upstream source failures by reason",
		},
		[]string{"source", "reason"}, // circuit_open, rate_limited, timeout, upstream
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fusegate",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	BudgetExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fusegate",
			Name:      "budget_exhausted_total",
			Help:      "Requests whose wall-clock budget expired before completion",
		},
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusegate",
			Name:      "cache_total",
			Help:      "Response cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var gatewayMetricsRegistered bool

// RegisterGatewayMetrics registers gateway Prometheus metrics. Must be called once from main.
func RegisterGatewayMetrics() {
	if gatewayMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SourceRequestDuration)
	prometheus.MustRegister(SourceErrorsTotal)
	prometheus.MustRegister(CircuitState)
	prometheus.MustRegister(BudgetExhaustedTotal)
	prometheus.MustRegister(CacheTotal)
	gatewayMetricsRegistered = true
}
