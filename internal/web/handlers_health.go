package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/csvportal/internal/core"
)

type healthResponse struct {
	Status    string              `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Database  string              `json:"database,omitempty"`
	Error     string              `json:"error,omitempty"`
	Limiter   *core.LimiterStatus `json:"limiter,omitempty"`
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

// handleHealthDB reports database connectivity and validation load.
func (s *Server) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := s.service.Limiter().Status()
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Database:  "connected",
		Limiter:   &status,
	}

	if err := s.service.Ping(ctx); err != nil {
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Error = core.MapError(err).Message
		writeJSONStatus(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, resp)
}
