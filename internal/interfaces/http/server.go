package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionrun/internal/metrics"
)

// HealthProvider supplies the trading-side state reported by /health.
type HealthProvider interface {
	OpenPositionCount() int
}

// Server exposes the observability endpoints: /health and /metrics.
type Server struct {
	router  *mux.Router
	server  *http.Server
	health  HealthProvider
	started time.Time
}

// NewServer builds the router against the metrics registry. health may be
// nil when no lifecycle manager is attached (check-config runs).
func NewServer(addr string, reg *metrics.Registry, health HealthProvider) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		health:  health,
		started: time.Now(),
	}

	s.router.Use(requestLogging)
	s.router.Handle("/metrics", promhttp.HandlerFor(reg.Prometheus(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called or the listener fails.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Observability server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	OpenPositions int     `json:"open_positions"`
	Timestamp     string  `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.started).Seconds(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if s.health != nil {
		resp.OpenPositions = s.health.OpenPositionCount()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Health response encode failed")
	}
}

// requestLogging logs each request with latency.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("latency", time.Since(start)).Msg("HTTP request")
	})
}
