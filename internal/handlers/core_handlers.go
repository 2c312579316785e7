package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"tavern-net/internal/engine/actors"
	"tavern-net/internal/utils"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string                   `json:"status"`
	Database    string                   `json:"database"`
	Propagation *actors.PropagationStats `json:"propagation,omitempty"`
	Metrics     *utils.MetricsSnapshot   `json:"metrics,omitempty"`
	ServerTime  time.Time                `json:"server_time"`
}

// HandleHealth reports store reachability, propagation counters and operation metrics.
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.RequestTimeout)
		defer cancel()

		response := HealthResponse{Status: "ok", Database: "ok", ServerTime: time.Now().UTC()}
		status := http.StatusOK
		if err := s.Engine.Store.Ping(ctx); err != nil {
			log.Printf("Health check: database ping failed: %v", err)
			response.Status = "degraded"
			response.Database = err.Error()
			status = http.StatusServiceUnavailable
		}

		if stats, err := s.Engine.PropagationStats(s.RequestTimeout); err == nil {
			response.Propagation = &stats
		} else if s.Debug {
			log.Printf("Health check: %v", err)
		}

		if s.Metrics != nil {
			snapshot := s.Metrics.Snapshot()
			response.Metrics = &snapshot
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(response)
	}
}

// HandleSimpleHealth answers liveness probes without touching the store.
func (s *Server) HandleSimpleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		})
	}
}
