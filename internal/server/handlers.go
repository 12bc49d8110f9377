package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Version is reported by /health.
var Version = "dev"

// handleHealth handles health check requests. Any database failing its
// quick check makes the service unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := s.systemHandlers.checkDatabases(ctx)
	status, code := "healthy", http.StatusOK
	for _, result := range checks {
		if result != "ok" {
			status, code = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}

	cpuPercent, memPercent := s.systemHandlers.getSystemStats()

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"version":   Version,
		"service":   "rebalancer",
		"databases": checks,
		"system": map[string]float64{
			"cpu_percent":    cpuPercent,
			"memory_percent": memPercent,
		},
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
