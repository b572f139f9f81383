package edgeproxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for proxy operations.
var (
	proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_proxy_requests_total",
		Help: "Total proxied requests by route and returned status",
	}, []string{"route", "status"})

	proxyUpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edge_proxy_upstream_duration_seconds",
		Help:    "Upstream fetch duration in seconds by route",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route"})

	proxyErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_proxy_errors_total",
		Help: "Total proxy errors by route and class",
	}, []string{"route", "class"})

	upstreamQuotaRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "edge_upstream_quota_remaining",
		Help: "Requests remaining in the upstream rate limit window, as last reported",
	}, []string{"route"})

	upstreamQuotaLowTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_upstream_quota_low_total",
		Help: "Upstream responses reporting a remaining quota below the warning threshold",
	}, []string{"route"})
)
