// Package http exposes the application state machine over HTTP.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/weather-lookup-service/internal/state"
)

// requestsPerMinute is the per-IP limit on /api routes.
const requestsPerMinute = 120

// Controller is the presentation surface of the state machine.
type Controller interface {
	State() state.State
	Subscribe() (<-chan state.State, func())
	SearchByText(text string)
	UseDeviceLocation()
	Reinitialize(hasLocationPermission bool) bool
	SelectDailyIndex(i int) bool
	SelectHourlyIndex(i int) bool
	ToggleHourlyView(showHourly bool) bool
	DismissError() bool
	CheckReadiness(ctx context.Context) error
}

// Server exposes health, readiness, metrics, and the lookup API.
type Server struct {
	httpServer *http.Server
	ctrl       Controller
	logger     *slog.Logger

	// closing is cancelled when Shutdown starts so streams end and their
	// connections can drain.
	closing    context.Context
	stopStream context.CancelFunc
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 routes.
func NewServer(addr string, ctrl Controller, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	closing, stopStream := context.WithCancel(context.Background())

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ctrl:       ctrl,
		logger:     logger,
		closing:    closing,
		stopStream: stopStream,
	}
	s.httpServer.RegisterOnShutdown(stopStream)

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(requestsPerMinute, time.Minute))

		r.Get("/state", s.handleState)
		r.Get("/state/stream", s.handleStream)
		r.Post("/search", s.handleSearch)
		r.Post("/location", s.handleLocation)
		r.Post("/reinitialize", s.handleReinitialize)
		r.Post("/select/daily/{index}", s.handleSelect(ctrl.SelectDailyIndex))
		r.Post("/select/hourly/{index}", s.handleSelect(ctrl.SelectHourlyIndex))
		r.Post("/view", s.handleView)
		r.Post("/dismiss", s.handleDismiss)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on l. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("http server starting", "addr", l.Addr().String())
	return s.httpServer.Serve(l)
}

// Shutdown ends open state streams and gracefully drains connections within
// the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ctrl.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
