package shellcache

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/fairway-edge/pkg/logging"
)

// Registration holds the active and the waiting worker for one origin and
// routes intercepted requests to the active one.
type Registration struct {
	network http.RoundTripper
	clients *ClientSet
	logger  zerolog.Logger

	// lifecycle serializes Update and TryActivate.
	lifecycle sync.Mutex

	// serving is held for reading by every routed request and for writing
	// while a worker activates, so no request reaches a worker whose store
	// is being purged.
	serving sync.RWMutex

	mu      sync.RWMutex
	active  *Worker
	waiting *Worker
}

// NewRegistration creates an empty registration. Without an active worker
// every request goes to network (default http.DefaultTransport).
func NewRegistration(network http.RoundTripper, clients *ClientSet) *Registration {
	if network == nil {
		network = http.DefaultTransport
	}
	if clients == nil {
		clients = NewClientSet()
	}
	return &Registration{
		network: network,
		clients: clients,
		logger:  logging.NewLogger("shell-registration"),
	}
}

// Clients returns the client set shared by all workers of this registration.
func (r *Registration) Clients() *ClientSet {
	return r.clients
}

// Active returns the active worker, if any.
func (r *Registration) Active() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Waiting returns the installed worker waiting to activate, if any.
func (r *Registration) Waiting() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waiting
}

// Update installs w. On failure the current active worker keeps serving and
// the install error is returned. On success w is parked as the waiting
// worker, replacing any previously waiting one, and becomes active right away
// with skip waiting or when no client is held by an older version.
func (r *Registration) Update(ctx context.Context, w *Worker) error {
	if err := w.install(ctx); err != nil {
		return err
	}

	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	previous := r.waiting
	r.waiting = w
	r.mu.Unlock()
	if previous != nil && previous != w {
		previous.Supersede()
	}

	if w.cfg.SkipWaiting {
		return r.activate(ctx, w)
	}
	_, err := r.tryActivate(ctx)
	return err
}

// TryActivate activates the waiting worker once no open client is controlled
// by another version. It reports whether a worker was activated; a waiting
// worker that is already active is left alone.
func (r *Registration) TryActivate(ctx context.Context) (bool, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	return r.tryActivate(ctx)
}

func (r *Registration) tryActivate(ctx context.Context) (bool, error) {
	w := r.Waiting()
	if w == nil || !w.ReadyToActivate() {
		return false, nil
	}

	if err := r.activate(ctx, w); err != nil {
		var te *TransitionError
		if errors.As(err, &te) && te.From == StateActive {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// activate runs w's activation and swaps it in as the active worker without
// letting requests through in between.
func (r *Registration) activate(ctx context.Context, w *Worker) error {
	r.serving.Lock()
	if err := w.Activate(ctx); err != nil {
		r.serving.Unlock()
		return err
	}

	r.mu.Lock()
	previous := r.active
	r.active = w
	if r.waiting == w {
		r.waiting = nil
	}
	r.mu.Unlock()
	r.serving.Unlock()

	if previous != nil && previous != w {
		previous.Supersede()
	}
	r.logger.Info().
		Str("version", w.Version()).
		Str("cache", w.CacheName()).
		Msg("Shell worker promoted")
	return nil
}

// RoundTrip implements http.RoundTripper by delegating to the active worker.
// It waits for an activation in progress.
func (r *Registration) RoundTrip(req *http.Request) (*http.Response, error) {
	r.serving.RLock()
	defer r.serving.RUnlock()

	if w := r.Active(); w != nil {
		return w.RoundTrip(req)
	}
	return r.network.RoundTrip(req)
}
