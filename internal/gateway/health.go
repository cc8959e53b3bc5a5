package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/parserdesk/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"` // "ok" or "degraded"
	Uptime    string                  `json:"uptime"`
	Sessions  int                     `json:"sessions"`
	Providers []provider.HealthStatus `json:"providers,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 unless a provider of the chain is dead.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).String(),
			Sessions: g.sessions.Len(),
		}

		if g.chain != nil {
			resp.Providers = g.chain.HealthReport()
			for _, p := range resp.Providers {
				if p.State == "dead" {
					resp.Status = "degraded"
					break
				}
			}
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
