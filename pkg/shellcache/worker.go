package shellcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/fairway-edge/pkg/cachestore"
	"github.com/Sternrassler/fairway-edge/pkg/logging"
)

// Config holds the immutable worker configuration.
type Config struct {
	// Origin is the base URL manifest paths are resolved against
	// (e.g. "https://fairway.example").
	Origin string

	// Version is the deploy-time shell version; it is part of the cache name.
	Version string

	// CachePrefix defaults to DefaultCachePrefix.
	CachePrefix string

	// Manifest defaults to DefaultManifest.
	Manifest Manifest

	// SkipWaiting activates the worker right after a successful install
	// instead of waiting for older versions to lose their clients.
	SkipWaiting bool
}

// Worker is one version of the offline shell.
type Worker struct {
	cfg       Config
	origin    *url.URL
	cacheName string
	rootKey   string

	storage cachestore.Storage
	network http.RoundTripper
	clients *ClientSet
	logger  zerolog.Logger

	// lifecycle serializes Install and Activate.
	lifecycle sync.Mutex

	mu    sync.RWMutex
	state State
}

// New creates an uninstalled worker. network defaults to
// http.DefaultTransport and clients to an empty set.
func New(cfg Config, storage cachestore.Storage, network http.RoundTripper, clients *ClientSet) (*Worker, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if strings.TrimSpace(cfg.Version) == "" {
		return nil, fmt.Errorf("version is required")
	}
	if len(cfg.Manifest) == 0 {
		cfg.Manifest = DefaultManifest
	}
	if err := cfg.Manifest.Validate(); err != nil {
		return nil, err
	}

	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("origin %q must be an absolute URL", cfg.Origin)
	}

	if network == nil {
		network = http.DefaultTransport
	}
	if clients == nil {
		clients = NewClientSet()
	}

	w := &Worker{
		cfg:       cfg,
		origin:    origin,
		cacheName: CacheName(cfg.CachePrefix, cfg.Version),
		storage:   storage,
		network:   network,
		clients:   clients,
		state:     StateUninstalled,
	}
	w.rootKey = cachestore.Key(http.MethodGet, w.resolve(RootPath))
	w.logger = logging.NewLogger("shell-worker").With().
		Str("cache", w.cacheName).
		Logger()

	return w, nil
}

// CacheName returns the name of the store this worker owns.
func (w *Worker) CacheName() string {
	return w.cacheName
}

// Version returns the worker's shell version.
func (w *Worker) Version() string {
	return w.cfg.Version
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	from := w.state
	w.state = s
	w.mu.Unlock()

	shellTransitionsTotal.WithLabelValues(s.String()).Inc()
	w.logger.Debug().
		Str("from", from.String()).
		Str("state", s.String()).
		Msg("Shell worker state changed")
}

func (w *Worker) resolve(path string) string {
	ref, err := w.origin.Parse(path)
	if err != nil {
		return w.origin.String() + path
	}
	return ref.String()
}

// Install fetches every manifest path and commits them to the worker's store
// in one atomic step. It blocks until the install has completed or failed.
//
// Any fetch error or non-2xx status aborts the install: nothing is written,
// the worker becomes redundant and an *InstallError is returned. With
// SkipWaiting the worker is activated before Install returns; otherwise it is
// left waiting. Workers owned by a Registration are installed through
// Registration.Update, which drives activation itself.
func (w *Worker) Install(ctx context.Context) error {
	if err := w.install(ctx); err != nil {
		return err
	}
	if !w.cfg.SkipWaiting {
		return nil
	}
	return w.Activate(ctx)
}

// install leaves the worker waiting on success.
func (w *Worker) install(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if s := w.State(); s != StateUninstalled {
		return &TransitionError{From: s, Event: "install"}
	}
	w.setState(StateInstalling)
	start := time.Now()

	entries := make([]*cachestore.Entry, 0, len(w.cfg.Manifest))
	for _, path := range w.cfg.Manifest {
		entry, err := w.fetchAsset(ctx, path)
		if err != nil {
			return w.failInstall(err)
		}
		entries = append(entries, entry)
	}

	if err := w.storage.Populate(ctx, w.cacheName, entries); err != nil {
		return w.failInstall(&InstallError{Err: err})
	}

	shellInstallDuration.Observe(time.Since(start).Seconds())
	w.logger.Info().
		Int("assets", len(entries)).
		Dur("duration", time.Since(start)).
		Msg("Shell installed")

	w.setState(StateWaiting)
	return nil
}

func (w *Worker) fetchAsset(ctx context.Context, path string) (*cachestore.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.resolve(path), nil)
	if err != nil {
		return nil, &InstallError{Path: path, Err: err}
	}

	resp, err := w.network.RoundTrip(req)
	if err != nil {
		return nil, &InstallError{Path: path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &InstallError{Path: path, StatusCode: resp.StatusCode}
	}
	if resp.Request == nil {
		resp.Request = req
	}

	entry, err := cachestore.ResponseToEntry(resp)
	resp.Body.Close()
	if err != nil {
		return nil, &InstallError{Path: path, Err: err}
	}
	return entry, nil
}

func (w *Worker) failInstall(err error) error {
	shellInstallFailuresTotal.Inc()
	w.logger.Error().Err(err).Msg("Shell install aborted")
	w.setState(StateRedundant)
	return err
}

// Activate deletes every store not owned by this worker, claims all open
// clients and enters the active state. It is only legal while waiting. If a
// stale store cannot be deleted the worker stays waiting and the error is
// returned.
func (w *Worker) Activate(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if s := w.State(); s != StateWaiting {
		return &TransitionError{From: s, Event: "activate"}
	}

	names, err := w.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("list cache stores: %w", err)
	}

	for _, name := range names {
		if name == w.cacheName {
			continue
		}
		if _, err := w.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete stale store %s: %w", name, err)
		}
		shellStoresPurgedTotal.Inc()
		w.logger.Info().Str("stale_cache", name).Msg("Deleted stale shell cache")
	}

	claimed := w.clients.Claim(w.cfg.Version)
	w.setState(StateActive)

	w.logger.Info().
		Int("claimed_clients", claimed).
		Msg("Shell worker activated")
	return nil
}

// ReadyToActivate reports whether no open client is still controlled by
// another version, i.e. whether a waiting worker may activate without
// skip-waiting.
func (w *Worker) ReadyToActivate() bool {
	return w.clients.ControlledByOther(w.cfg.Version) == 0
}

// Supersede marks the worker redundant. It is called once a newer version has
// been activated.
func (w *Worker) Supersede() {
	if w.State() == StateRedundant {
		return
	}
	w.setState(StateRedundant)
}

// IsNavigation reports whether req is a full page load.
func IsNavigation(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Sec-Fetch-Mode"), "navigate")
}

// RoundTrip implements http.RoundTripper. Outside the active state every
// request passes straight through to the network.
func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	if w.State() != StateActive {
		shellFetchesTotal.WithLabelValues("passthrough", "network").Inc()
		return w.network.RoundTrip(req)
	}

	if IsNavigation(req) {
		return w.fetchNavigation(req)
	}
	if req.Method != http.MethodGet {
		shellFetchesTotal.WithLabelValues("passthrough", "network").Inc()
		return w.network.RoundTrip(req)
	}
	return w.fetchCacheFirst(req)
}

// fetchNavigation goes to the network and falls back to the cached root
// document only when the fetch itself fails. Error statuses are returned as-is.
func (w *Worker) fetchNavigation(req *http.Request) (*http.Response, error) {
	resp, err := w.network.RoundTrip(req)
	if err == nil {
		shellFetchesTotal.WithLabelValues("navigation", "network").Inc()
		return resp, nil
	}

	// The caller went away; there is nobody to serve a fallback to.
	if req.Context().Err() != nil {
		shellFetchesTotal.WithLabelValues("navigation", "error").Inc()
		return nil, err
	}

	entry, matchErr := w.storage.Match(req.Context(), w.cacheName, w.rootKey)
	if matchErr != nil {
		shellFetchesTotal.WithLabelValues("navigation", "error").Inc()
		w.logger.Warn().
			Err(err).
			AnErr("match_error", matchErr).
			Str("url", req.URL.String()).
			Msg("Navigation failed and no offline shell is available")
		return nil, err
	}

	shellFetchesTotal.WithLabelValues("navigation", "fallback").Inc()
	w.logger.Warn().
		Err(err).
		Str("url", req.URL.String()).
		Msg("Navigation served from offline shell")
	return entry.Response(req), nil
}

// fetchCacheFirst serves from the current store and only goes to the network
// on a miss. Network responses are never written back.
func (w *Worker) fetchCacheFirst(req *http.Request) (*http.Response, error) {
	entry, err := w.storage.Match(req.Context(), w.cacheName, cachestore.RequestKey(req))
	if err == nil {
		shellFetchesTotal.WithLabelValues("cache_first", "cache").Inc()
		w.logger.Debug().Str("url", req.URL.String()).Msg("Shell cache hit")
		return entry.Response(req), nil
	}
	if !errors.Is(err, cachestore.ErrNotFound) {
		w.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Shell cache lookup failed")
	}

	resp, err := w.network.RoundTrip(req)
	if err != nil {
		shellFetchesTotal.WithLabelValues("cache_first", "error").Inc()
		return nil, err
	}
	shellFetchesTotal.WithLabelValues("cache_first", "network").Inc()
	return resp, nil
}
