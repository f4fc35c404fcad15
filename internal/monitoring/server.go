// Package monitoring exposes the optional HTTP listener for scrapers
// and orchestrators: Prometheus metrics, a liveness endpoint backed by
// the health file, and a JSON status summary.
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unifi-insight/reporter/internal/circuitbreaker"
	"github.com/unifi-insight/reporter/internal/health"
)

// Server is the monitoring HTTP listener.
type Server struct {
	addr     string
	health   *health.Writer
	breakers *circuitbreaker.Manager
	logger   *zap.Logger
	srv      *http.Server
}

// NewServer wires the listener. breakers may be nil when no
// integrations are configured.
func NewServer(addr string, hw *health.Writer, breakers *circuitbreaker.Manager, logger *zap.Logger) *Server {
	return &Server{
		addr:     addr,
		health:   hw,
		breakers: breakers,
		logger:   logger.Named("monitoring"),
	}
}

// Router builds the route table; split out so tests can drive it with
// httptest.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	r.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	return r
}

// Start runs the listener until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("monitoring listener started", zap.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	snapshot, ok := s.health.Read()
	w.Header().Set("Content-Type", "application/json")
	if !ok || snapshot.Status != health.StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if !ok {
		json.NewEncoder(w).Encode(map[string]string{"status": "unknown"})
		return
	}
	json.NewEncoder(w).Encode(snapshot)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	breakerStates := map[string]string{}
	if s.breakers != nil {
		for name, state := range s.breakers.States() {
			breakerStates[name] = state.String()
		}
	}

	status := map[string]interface{}{
		"breakers": breakerStates,
	}
	if snapshot, ok := s.health.Read(); ok {
		status["status"] = snapshot.Status
		status["last_run_at"] = snapshot.LastRunAt
		if snapshot.LastError != "" {
			status["last_error"] = snapshot.LastError
		}
	} else {
		status["status"] = "unknown"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
