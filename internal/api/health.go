package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 3 * time.Second

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// handleHealth checks the subscriptions and every registered component.
// It answers 200 when all are healthy and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		Version:    s.version,
		Components: make(map[string]string),
	}

	check := func(name string, hc HealthChecker) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			return
		}
		resp.Components[name] = "ok"
	}

	check("subscriptions", s.status)
	for _, name := range s.componentNames() {
		if hc := s.healthChecker(name); hc != nil {
			check(name, hc)
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
