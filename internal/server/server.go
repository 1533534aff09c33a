// Package server exposes Clario over HTTP: the WebSocket streaming endpoint,
// Prometheus metrics, and health probes.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/clariohq/clario/internal/app"
	"github.com/clariohq/clario/internal/config"
	"github.com/clariohq/clario/internal/health"
	"github.com/clariohq/clario/internal/observe"
)

// shutdownTimeout bounds graceful drain of in-flight requests on exit.
const shutdownTimeout = 15 * time.Second

// Server is the HTTP/WebSocket front of the application. Create with [New]
// and drive with [Run].
type Server struct {
	cfg config.ServerConfig
	app *app.App
	log *slog.Logger
}

// New creates a server for the given app.
func New(cfg config.ServerConfig, a *app.App) *Server {
	return &Server{
		cfg: cfg,
		app: a,
		log: slog.Default().With("component", "server"),
	}
}

// Handler assembles the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	health.New(s.app.HealthCheckers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	return observe.Middleware(s.app.Metrics())(mux)
}

// Run serves HTTP until ctx is cancelled, then drains gracefully. TLS is used
// when configured.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if s.cfg.TLS != nil {
			s.log.Info("listening", "addr", s.cfg.ListenAddr, "tls", true)
			err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.log.Info("listening", "addr", s.cfg.ListenAddr, "tls", false)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("draining connections", "timeout", shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			// Hijacked WebSocket connections are not waited on by Shutdown;
			// force-close whatever remains.
			return srv.Close()
		}
		return nil
	})

	return g.Wait()
}
