package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/daybook/internal/cron"
)

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Version           string             `json:"version"`
	UptimeSeconds     int64              `json:"uptime_seconds"`
	WidgetMode        string             `json:"widget_mode,omitempty"`
	WidgetSubscribers int                `json:"widget_subscribers"`
	Jobs              map[cron.State]int `json:"jobs"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Version:       g.cfg.Version,
			UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
			Jobs:          map[cron.State]int{},
		}
		if g.cfg.Widgets != nil {
			resp.WidgetMode = string(g.cfg.Widgets.Mode())
		}
		if g.cfg.Hub != nil {
			resp.WidgetSubscribers = g.cfg.Hub.Subscribers()
		}
		if g.cfg.Jobs != nil {
			for _, rec := range g.cfg.Jobs.List() {
				resp.Jobs[rec.State]++
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
