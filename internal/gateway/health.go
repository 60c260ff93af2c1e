package gateway

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "degraded"
	Error  string `json:"error,omitempty"`
}

// handleHealth returns 200 when the health check passes, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		code := http.StatusOK

		if g.cfg.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := g.cfg.Health(ctx); err != nil {
				resp = HealthResponse{Status: "degraded", Error: err.Error()}
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, resp)
	}
}
