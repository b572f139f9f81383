package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/fairway-edge/pkg/config"
	"github.com/Sternrassler/fairway-edge/pkg/edgeproxy"
	"github.com/Sternrassler/fairway-edge/pkg/logging"
	"github.com/Sternrassler/fairway-edge/pkg/metrics"
	"github.com/Sternrassler/fairway-edge/pkg/version"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:          logging.LogLevel(cfg.LogLevel),
		Pretty:         cfg.LogPretty,
		Output:         os.Stderr,
		File:           cfg.LogFile,
		FileMaxSizeMB:  100,
		FileMaxBackups: 5,
	})
	logger := logging.NewLogger("edge-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, err := newRouter(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build router")
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("addr", srv.Addr).
		Str("upstream", cfg.UpstreamOrigin).
		Dur("upstream_timeout", cfg.UpstreamTimeout).
		Str("version", version.Full()).
		Msg("Starting edge proxy")

	if err := serve(ctx, srv, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// serve runs srv until ctx is cancelled and then shuts it down.
func serve(ctx context.Context, srv *http.Server, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// quotaStaleAfter marks a route's quota as stale when no upstream response
// has reported it for this long.
const quotaStaleAfter = 10 * time.Minute

// newRouter mounts the proxy routes, the operational endpoints and, when
// SHELL_DIR is set, the static shell.
func newRouter(cfg *config.Config) (http.Handler, error) {
	quota := edgeproxy.NewQuotaObserver(edgeproxy.DefaultQuotaWarning)
	proxyCfg := edgeproxy.Config{
		Origin:     cfg.UpstreamOrigin,
		HTTPClient: edgeproxy.NewHTTPClient(cfg.UpstreamTimeout),
		Quota:      quota,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", healthHandler)
	r.Get("/quota", quotaHandler(quota, quotaStaleAfter))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	for _, route := range edgeproxy.Routes() {
		p, err := edgeproxy.New(route, proxyCfg)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", route.Name, err)
		}
		// The proxy answers every method itself so non-GET requests get
		// its 405 body.
		r.Handle(route.Path, p)
	}

	if cfg.ShellDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.ShellDir)))
	}

	return r, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// routeQuota is the last upstream budget seen for one route.
type routeQuota struct {
	edgeproxy.QuotaState
	ResetInSeconds float64 `json:"reset_in_seconds"`
	Stale          bool    `json:"stale"`
}

// quotaHandler lists the upstream budget per route. Routes whose upstream
// never reported one are left out.
func quotaHandler(quota *edgeproxy.QuotaObserver, staleAfter time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]routeQuota)
		for _, route := range edgeproxy.Routes() {
			state, ok := quota.State(route.Name)
			if !ok {
				continue
			}
			status[route.Name] = routeQuota{
				QuotaState:     state,
				ResetInSeconds: state.TimeUntilReset().Seconds(),
				Stale:          state.IsStale(staleAfter),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Warn().Err(err).Msg("Failed to write quota status")
		}
	}
}

// requestLogger logs every request at debug level with the chi request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
