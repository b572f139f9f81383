package cachestore

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreMatches tracks lookups by backend and result ("hit", "miss")
	StoreMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shell_store_matches_total",
			Help: "Total number of shell store lookups by outcome",
		},
		[]string{"backend", "result"},
	)

	// StoreErrors tracks backend operation errors
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shell_store_errors_total",
			Help: "Total number of shell store operation errors",
		},
		[]string{"backend", "operation"}, // "names", "has", "populate", "match", "delete"
	)

	// PopulatedEntries tracks the size of the last populated store
	PopulatedEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shell_store_populated_entries",
			Help: "Number of entries written by the last populate",
		},
		[]string{"backend"},
	)
)

func recordMatch(backend string, err error) {
	switch {
	case err == nil:
		StoreMatches.WithLabelValues(backend, "hit").Inc()
	case errors.Is(err, ErrNotFound):
		StoreMatches.WithLabelValues(backend, "miss").Inc()
	default:
		StoreErrors.WithLabelValues(backend, "match").Inc()
	}
}
