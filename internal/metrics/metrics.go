package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's prometheus instruments on a private registry
// so the default global registry stays untouched.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	upstreamTotal *prometheus.CounterVec
	upstreamMs    *prometheus.HistogramVec
}

// New builds and registers the gateway instruments.
func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zeke_gateway_requests_total",
			Help: "Total HTTP requests processed by the gateway.",
		}, []string{"method", "path", "status"}),
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zeke_gateway_upstream_requests_total",
			Help: "Total upstream provider calls by outcome.",
		}, []string{"provider", "outcome"}),
		upstreamMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zeke_gateway_upstream_latency_ms",
			Help:    "Upstream provider call latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}, []string{"provider"}),
	}
	r.MustRegister(m.requestsTotal, m.upstreamTotal, m.upstreamMs)
	return m
}

// Handler serves the private registry in prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one handled HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// ObserveUpstream records one upstream provider call.
func (m *Metrics) ObserveUpstream(provider string, err error, dur time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.upstreamTotal.WithLabelValues(provider, outcome).Inc()
	m.upstreamMs.WithLabelValues(provider).Observe(float64(dur.Milliseconds()))
}
