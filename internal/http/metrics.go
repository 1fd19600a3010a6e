package httpx

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// routerMetrics groups the Prometheus collectors for the HTTP surface.
// Collectors go to the default registry; when several routers share one
// process (tests mostly) the already-registered collector is reused.
type routerMetrics struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	throttled     *prometheus.CounterVec
	wsConnections prometheus.Gauge
}

func newRouterMetrics() *routerMetrics {
	return &routerMetrics{
		requests: register(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wavecall",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"})),
		latency: register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wavecall",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   latencyBuckets,
		}, []string{"method", "route", "status"})),
		throttled: register(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wavecall",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "key"})),
		wsConnections: register(prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wavecall",
			Subsystem: "api",
			Name:      "websocket_connections",
			Help:      "Open presence websocket connections",
		})),
	}
}

// register adds the collector to the default registry, falling back to
// the existing collector when an identical one is already registered.
func register[C prometheus.Collector](collector C) C {
	if err := prometheus.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return collector
}

func (m *routerMetrics) observeRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requests.With(labels).Inc()
	m.latency.With(labels).Observe(duration.Seconds())
}

func (m *routerMetrics) observeThrottle(route, key string) {
	m.throttled.With(prometheus.Labels{"route": route, "key": key}).Inc()
}

func (m *routerMetrics) wsOpened() {
	m.wsConnections.Inc()
}

func (m *routerMetrics) wsClosed() {
	m.wsConnections.Dec()
}
