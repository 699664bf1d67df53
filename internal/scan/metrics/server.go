package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
)

// StatusReporter supplies the current scanner position for the health
// endpoints.
type StatusReporter interface {
	Status(ctx context.Context) (*domain.ScannerPosition, error)
}

// Server provides HTTP endpoints for health and metrics.
type Server struct {
	reporter StatusReporter
	server   *http.Server
}

// NewServer creates a new metrics server on the given port.
func NewServer(reporter StatusReporter, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		reporter: reporter,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	pos, err := s.reporter.Status(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}

	status := "ok"
	if pos.State == domain.ScannerStatePaused {
		status = "paused"
	} else if pos.State == domain.ScannerStateRollingBack {
		status = "rolling_back"
	}
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pos, err := s.reporter.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pos)
}
