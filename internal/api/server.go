// Package api serves the public HTTP interface of the poller.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prok20/faulty-server-poller/internal/run"
)

// PollingService is the subset of the service used by the handlers.
type PollingService interface {
	StartRun(ctx context.Context, seconds uint64) (run.ID, error)
	GetRun(ctx context.Context, id run.ID) (run.Run, error)
}

// Server is the HTTP server for the polling API.
type Server struct {
	httpServer *http.Server
}

// New builds the server. metrics may be nil, in which case /metrics is not served.
func New(addr string, svc PollingService, metrics http.Handler, log *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(svc, metrics, log),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
	}
}

// NewHandler returns the routed handler wrapped in request logging.
func NewHandler(svc PollingService, metrics http.Handler, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{svc: svc, logger: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs", h.startRun)
	mux.HandleFunc("GET /runs/{id}", h.getRun)
	mux.HandleFunc("GET /health_check", h.healthCheck)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return requestLogging(log)(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
