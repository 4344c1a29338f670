// Package server wires the HTTP routes and runs the listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/zoning-relay/internal/core/config"
	"github.com/mohammed-shakir/zoning-relay/internal/core/health"
	middleware "github.com/mohammed-shakir/zoning-relay/internal/core/middleware"
	"github.com/mohammed-shakir/zoning-relay/internal/core/relay"
	"github.com/mohammed-shakir/zoning-relay/internal/store"
)

const CheckRoute = "/check"

// NewRouter builds the relay's routes. The check handler is mounted for every
// method so that it can answer 405 itself.
func NewRouter(cfg config.Config, logger *slog.Logger, st store.Interface, ready ...health.Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Backend(cfg.Backend))
	r.Use(middleware.CORS(cfg.Relay.AllowedOrigin, cfg.Relay.CORSPreflight))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, ready...))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	limited := middleware.RateLimit(middleware.NewLimiter(cfg.Relay.RateLimitRPS, cfg.Relay.RateLimitBurst))
	r.With(limited).HandleFunc(CheckRoute, relay.HandleCheck(logger, cfg.Relay, st, CheckRoute))
	if fr := cfg.Relay.FunctionRoute; fr != "" && fr != CheckRoute {
		r.With(limited).HandleFunc(fr, relay.HandleCheck(logger, cfg.Relay, st, fr))
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, st store.Interface, ready ...health.Check) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, logger, st, ready...),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Store.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		timeout := cfg.Relay.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
