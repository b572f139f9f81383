// Package metrics provides the Prometheus registry shared by fairway-edge.
// All metrics are defined in their respective packages (edgeproxy, shellcache,
// cachestore) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by fairway-edge.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the metrics registered with Registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Proxy Metrics (pkg/edgeproxy):
//   - edge_proxy_requests_total{route, status} (Counter): Requests by route and returned status
//   - edge_proxy_upstream_duration_seconds{route} (Histogram): Upstream fetch duration
//   - edge_proxy_errors_total{route, class} (Counter): Errors by class (client_method, upstream_unavailable, upstream_error)
//
// Upstream Quota Metrics (pkg/edgeproxy):
//   - edge_upstream_quota_remaining{route} (Gauge): Remaining upstream budget as last reported
//   - edge_upstream_quota_low_total{route} (Counter): Responses reporting a budget below the warning threshold
//
// Shell Worker Metrics (pkg/shellcache):
//   - shell_fetches_total{strategy, source} (Counter): Intercepted requests by strategy and response source
//   - shell_lifecycle_transitions_total{state} (Counter): Lifecycle transitions by target state
//   - shell_install_failures_total (Counter): Aborted installs
//   - shell_install_duration_seconds (Histogram): Duration of successful installs
//   - shell_stores_purged_total (Counter): Stale stores deleted on activation
//
// Shell Store Metrics (pkg/cachestore):
//   - shell_store_matches_total{backend, result} (Counter): Store lookups by backend and outcome
//   - shell_store_errors_total{backend, operation} (Counter): Backend operation errors
//   - shell_store_populated_entries{backend} (Gauge): Entries written by the last populate
//
// Example Prometheus Queries:
//
//   # Shell Cache Hit Rate
//   sum(rate(shell_store_matches_total{result="hit"}[5m])) /
//   sum(rate(shell_store_matches_total[5m]))
//
//   # Offline Fallbacks
//   rate(shell_fetches_total{strategy="navigation", source="fallback"}[5m])
//
//   # Upstream Unavailable Rate
//   rate(edge_proxy_errors_total{class="upstream_unavailable"}[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(edge_proxy_upstream_duration_seconds_bucket[5m]))
//
//   # Quota Running Low
//   edge_upstream_quota_remaining < 50
