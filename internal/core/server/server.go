package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/building-dims/internal/core/config"
	"github.com/mohammed-shakir/building-dims/internal/core/health"
	middleware "github.com/mohammed-shakir/building-dims/internal/core/middleware"
	"github.com/mohammed-shakir/building-dims/internal/core/router"
)

type Options struct {
	// Metrics serves /metrics; the default registry handler when nil.
	Metrics http.Handler
	// Ready checks back /readyz. Without checks the route reports ready.
	Ready map[string]health.Check
}

// builds the route table
func NewRouter(cfg config.Config, logger *slog.Logger, handler router.EstimateHandler, opts Options) http.Handler {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.CORSOrigins)))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, opts.Ready))
	r.Get("/metrics", metrics.ServeHTTP)
	r.Post(router.EstimateRoute, router.HandleEstimate(logger, cfg, handler))
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler router.EstimateHandler, opts Options) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, logger, handler, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
