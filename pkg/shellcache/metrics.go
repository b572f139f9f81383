package shellcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the shell worker.
var (
	shellFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shell_fetches_total",
		Help: "Intercepted requests by strategy and where the response came from",
	}, []string{"strategy", "source"}) // strategy: navigation, cache_first, passthrough; source: network, cache, fallback, error

	shellTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shell_lifecycle_transitions_total",
		Help: "Worker lifecycle transitions by target state",
	}, []string{"state"})

	shellInstallFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shell_install_failures_total",
		Help: "Total number of aborted shell installs",
	})

	shellInstallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shell_install_duration_seconds",
		Help:    "Duration of successful shell installs",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	shellStoresPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shell_stores_purged_total",
		Help: "Total number of stale shell cache stores deleted during activation",
	})
)
