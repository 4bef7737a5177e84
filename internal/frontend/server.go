// Package frontend serves the HTTP API: graph inspection, gate
// resolution, health, and Prometheus metrics.
package frontend

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gantry-org/gantry/internal/config"
	"github.com/gantry-org/gantry/internal/frontend/api"
	"github.com/gantry-org/gantry/internal/logger"
)

// Server hosts the API over HTTP.
type Server struct {
	api        *api.API
	config     *config.Config
	registry   *prometheus.Registry
	httpServer *http.Server
}

// NewServer creates a Server for the given API. registry, when non-nil,
// is exposed at /metrics.
func NewServer(a *api.API, cfg *config.Config, registry *prometheus.Registry) *Server {
	return &Server{
		api:      a,
		config:   cfg,
		registry: registry,
	}
}

// Serve starts the HTTP server and blocks until the context is canceled
// or a shutdown signal arrives.
func (srv *Server) Serve(ctx context.Context) error {
	requestLogger := httplog.NewLogger("http", httplog.Options{
		LogLevel:         slog.LevelDebug,
		JSON:             srv.config.LogFormat == "json",
		Concise:          true,
		MessageFieldName: "msg",
	})

	r := chi.NewMux()
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(withRecoverer)

	r.Route("/api/v1", srv.api.ConfigureRoutes)
	if srv.registry != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(srv.registry, promhttp.HandlerOpts{}))
	}

	addr := srv.config.Addr()
	srv.httpServer = &http.Server{
		Handler:           r,
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "Server is starting", "addr", addr)
		if err := srv.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Failed to start server", "err", err)
		}
	}()

	srv.gracefulShutdown(ctx)
	return nil
}

// Shutdown stops the HTTP server.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.httpServer != nil {
		logger.Info(ctx, "Server is shutting down", "addr", srv.httpServer.Addr)
		return srv.httpServer.Shutdown(ctx)
	}
	return nil
}

func (srv *Server) gracefulShutdown(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-ctx.Done():
		logger.Info(ctx, "Context done, shutting down server")
	case <-quit:
		logger.Info(ctx, "Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.httpServer.SetKeepAlivesEnabled(false)
	if err := srv.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Failed to shutdown server", "err", err)
	}

	logger.Info(ctx, "Server shutdown complete")
}

// withRecoverer is adapted from chi's recoverer middleware.
func withRecoverer(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				st := string(debug.Stack())
				logger.Error(r.Context(), "Panic occurred", "err", rvr, "st", st)

				if r.Header.Get("Connection") != "Upgrade" {
					w.WriteHeader(http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(w, r)
	}

	return http.HandlerFunc(fn)
}
