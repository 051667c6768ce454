package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	once     sync.Once

	submitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_submit_latency_seconds",
		Help:    "Latency of order submission in seconds, including retries.",
		Buckets: prometheus.DefBuckets,
	})
	ordersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_submitted_total",
			Help: "Total number of orders submitted to the exchange.",
		},
		[]string{"symbol", "mode"},
	)
	ordersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_filled_total",
			Help: "Total number of orders fully filled.",
		},
		[]string{"symbol"},
	)
	ordersFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_failed_total",
			Help: "Total number of orders marked FAILED or REJECTED.",
		},
		[]string{"symbol", "state"},
	)
	riskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_rejections_total",
			Help: "Total number of orders rejected by a risk policy.",
		},
		[]string{"policy"},
	)
	breakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips.",
	})
	openOrders = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "open_orders",
		Help: "Current number of non-terminal orders.",
	})
)

// Init registers metrics with the registry once.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
			submitLatency,
			ordersSubmitted,
			ordersFilled,
			ordersFailed,
			riskRejections,
			breakerTrips,
			openOrders,
		)
	})
}

// Handler exposes the Prometheus metrics endpoint handler.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveSubmitLatency records an order submission latency duration.
func ObserveSubmitLatency(d time.Duration) {
	Init()
	submitLatency.Observe(d.Seconds())
}

// IncOrdersSubmitted increments the submitted counter for a symbol and mode.
func IncOrdersSubmitted(symbol, mode string) {
	Init()
	ordersSubmitted.WithLabelValues(symbol, mode).Inc()
}

// IncOrdersFilled increments the filled counter for a symbol.
func IncOrdersFilled(symbol string) {
	Init()
	ordersFilled.WithLabelValues(symbol).Inc()
}

// IncOrdersFailed increments the failure counter for a symbol and terminal state.
func IncOrdersFailed(symbol, state string) {
	Init()
	ordersFailed.WithLabelValues(symbol, state).Inc()
}

// IncRiskRejections increments the rejection counter for a policy.
func IncRiskRejections(policy string) {
	Init()
	riskRejections.WithLabelValues(policy).Inc()
}

// IncBreakerTrips increments the circuit breaker trip counter.
func IncBreakerTrips() {
	Init()
	breakerTrips.Inc()
}

// SetOpenOrders sets the current open order gauge.
func SetOpenOrders(n int) {
	Init()
	openOrders.Set(float64(n))
}
