package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/fedihype/fedihype/internal/engine"
	"github.com/fedihype/fedihype/internal/history"
)

// Server exposes the bot's operational state over HTTP: health, the latest
// cycle summary, the current quota counters, and prometheus metrics.
type Server struct {
	engine   *engine.Engine
	hist     *history.Store
	registry *prometheus.Registry
	port     int
	log      *logrus.Logger
}

// New creates the status server.
func New(eng *engine.Engine, hist *history.Store, registry *prometheus.Registry, port int, log *logrus.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		engine:   eng,
		hist:     hist,
		registry: registry,
		port:     port,
		log:      log,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/cycle", s.handleCycle)
	mux.HandleFunc("/api/v1/state", s.handleState)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", s.port)
	s.log.WithField("addr", addr).Info("status server listening")
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.LastCycle())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"seen_statuses": s.hist.SeenCount(),
		"hour_count":    s.hist.HourCount(now),
		"day_count":     s.hist.DayCount(now),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing useful to do.
		_ = err
	}
}
