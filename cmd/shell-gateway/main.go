package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/fairway-edge/pkg/cachestore"
	"github.com/Sternrassler/fairway-edge/pkg/config"
	"github.com/Sternrassler/fairway-edge/pkg/logging"
	"github.com/Sternrassler/fairway-edge/pkg/metrics"
	"github.com/Sternrassler/fairway-edge/pkg/shellcache"
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
	logger := logging.NewLogger("shell-gateway")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.ShellStorage).Msg("Failed to open shell storage")
	}
	defer func() {
		if err := closeStorage(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close shell storage")
		}
	}()

	reg, err := startShell(ctx, cfg, storage, http.DefaultTransport)
	if err != nil {
		// The gateway still forwards to the network; a previously installed
		// store stays untouched.
		logger.Error().Err(err).Msg("Shell install failed, serving from network")
	}

	router, err := newRouter(cfg, reg, storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build router")
	}

	tracker := newConnTracker(reg)
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.GatewayPort),
		Handler:           router,
		ConnState:         tracker.ConnState,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("addr", srv.Addr).
		Str("origin", cfg.ShellOrigin).
		Str("storage", cfg.ShellStorage).
		Str("shell_version", cfg.ShellVersion).
		Str("version", version.Full()).
		Msg("Starting shell gateway")

	if err := serve(ctx, srv, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// startShell creates the registration and installs the configured shell
// version. The registration is returned even when the install fails.
func startShell(ctx context.Context, cfg *config.Config, storage cachestore.Storage, network http.RoundTripper) (*shellcache.Registration, error) {
	reg := shellcache.NewRegistration(network, nil)

	worker, err := shellcache.New(shellcache.Config{
		Origin:      cfg.ShellOrigin,
		Version:     cfg.ShellVersion,
		SkipWaiting: cfg.ShellSkipWaiting,
	}, storage, network, reg.Clients())
	if err != nil {
		return reg, err
	}

	installCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := reg.Update(installCtx, worker); err != nil {
		return reg, err
	}
	return reg, nil
}

func newRouter(cfg *config.Config, reg *shellcache.Registration, storage cachestore.Storage) (http.Handler, error) {
	origin, err := url.Parse(cfg.ShellOrigin)
	if err != nil {
		return nil, fmt.Errorf("parse shell origin: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/_gateway", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "OK")
		})
		r.Get("/ready", readyHandler(storage))
		r.Get("/status", statusHandler(reg))
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	})
	r.Handle("/*", newGateway(origin, reg))

	return r, nil
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
