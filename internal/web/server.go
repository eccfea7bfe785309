// Package web serves the read-only HTTP surface: health, metrics, and the
// latest readings snapshot.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
)

// ReadingsFunc returns the latest snapshot; ok is false before the first
// snapshot exists.
type ReadingsFunc func() (gauge.Readings, bool)

// ReadyFunc reports nil once the service finished startup reconciliation.
type ReadyFunc func() error

// Server exposes the readings over HTTP.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer wires the handler mux. registry may carry the pipeline metrics;
// pass a fresh registry in tests.
func NewServer(listen string, readings ReadingsFunc, ready ReadyFunc, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/readings", func(w http.ResponseWriter, r *http.Request) {
		snapshot, ok := readings()
		if !ok {
			http.Error(w, "no readings yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			logger.Error().Err(err).Msg("encode readings response")
		}
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "web").Logger(),
	}
}

// Handler exposes the mux for httptest.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.srv.Addr).Msg("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
