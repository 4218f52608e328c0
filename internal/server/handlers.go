package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/quantumfolio/internal/version"
)

const healthCheckTimeout = 2 * time.Second

// HealthResponse reports liveness plus the reachability of every database.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Service   string            `json:"service"`
	Databases map[string]string `json:"databases"`
}

// handleHealth answers 503 with status "degraded" when any database fails its check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   version.Version,
		Service:   "quantumfolio",
		Databases: make(map[string]string, len(s.databases)),
	}
	for _, db := range s.databases {
		if err := db.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			response.Databases[db.Name()] = "unreachable"
			response.Status = "degraded"
			continue
		}
		response.Databases[db.Name()] = "ok"
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	s.systemHandlers.writeJSON(w, status, response)
}
