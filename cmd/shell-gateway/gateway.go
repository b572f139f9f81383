package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/fairway-edge/pkg/cachestore"
	"github.com/Sternrassler/fairway-edge/pkg/shellcache"
)

// newGateway forwards every request to origin through the registration, so
// the active shell worker decides between cache and network.
func newGateway(origin *url.URL, reg *shellcache.Registration) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.Out.Host = origin.Host
		},
		Transport: reg,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn().
				Err(err).
				Str("path", r.URL.Path).
				Bool("navigation", shellcache.IsNavigation(r)).
				Msg("Gateway request failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

// connTracker maps gateway connections to shell clients. A new connection is
// a client controlled by the active worker; closing the last connection held
// by an older version lets a waiting worker activate.
type connTracker struct {
	reg *shellcache.Registration

	mu    sync.Mutex
	conns map[net.Conn]uuid.UUID
}

func newConnTracker(reg *shellcache.Registration) *connTracker {
	return &connTracker{
		reg:   reg,
		conns: make(map[net.Conn]uuid.UUID),
	}
}

// ConnState is installed as http.Server.ConnState.
func (t *connTracker) ConnState(conn net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		controller := ""
		if w := t.reg.Active(); w != nil {
			controller = w.Version()
		}
		id := t.reg.Clients().Open(controller)

		t.mu.Lock()
		t.conns[conn] = id
		t.mu.Unlock()

	case http.StateClosed, http.StateHijacked:
		t.mu.Lock()
		id, ok := t.conns[conn]
		delete(t.conns, conn)
		t.mu.Unlock()
		if !ok {
			return
		}

		t.reg.Clients().Close(id)
		if t.reg.Waiting() == nil {
			return
		}
		activated, err := t.reg.TryActivate(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("Failed to activate waiting shell worker")
			return
		}
		if activated {
			log.Info().Str("version", t.reg.Active().Version()).Msg("Waiting shell worker activated")
		}
	}
}

// Len returns the number of tracked connections.
func (t *connTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

type workerStatus struct {
	Version string `json:"version"`
	Cache   string `json:"cache"`
	State   string `json:"state"`
}

type gatewayStatus struct {
	Active  *workerStatus `json:"active,omitempty"`
	Waiting *workerStatus `json:"waiting,omitempty"`
	Clients int           `json:"clients"`
}

func describe(w *shellcache.Worker) *workerStatus {
	if w == nil {
		return nil
	}
	return &workerStatus{
		Version: w.Version(),
		Cache:   w.CacheName(),
		State:   w.State().String(),
	}
}

// statusHandler reports the active and waiting worker.
func statusHandler(reg *shellcache.Registration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := gatewayStatus{
			Active:  describe(reg.Active()),
			Waiting: describe(reg.Waiting()),
			Clients: reg.Clients().Len(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Warn().Err(err).Msg("Failed to write gateway status")
		}
	}
}

// readyHandler reports 503 while the shell store backend does not answer.
func readyHandler(storage cachestore.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, err := storage.Names(ctx); err != nil {
			log.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "Shell storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}
