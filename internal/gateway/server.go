package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(g.metrics.middleware)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if g.cfg.Hub != nil {
		r.Handle("/ws/widgets", g.cfg.Hub)
	}

	// Webhooks carry their own HMAC signature per source.
	r.Post("/webhooks/{source}", g.webhooks.ServeHTTP)

	// Admin endpoints, auth required. Not mounted if no auth configured.
	if g.cfg.Settings.Auth.IsConfigured() {
		r.Route("/api", func(r chi.Router) {
			r.Use(authMiddleware(g.cfg.Settings.Auth, g.cfg.Audit, g.cfg.Limiter))
			r.Get("/status", g.handleStatus())

			r.Get("/jobs", g.handleListJobs())
			r.Get("/jobs/{key}", g.handleGetJob())
			r.Delete("/jobs/{key}", g.handleCancelJob())

			r.Post("/widgets/refresh", g.handleRefreshWidgets())
			r.Put("/widgets/mode", g.handleSetWidgetMode())

			r.Post("/events/external", g.handleExternalEvent())

			r.Post("/backups", g.handleRunBackup())
			r.Get("/backups", g.handleListBackups())

			r.Put("/tasks/{id}", g.handlePutTask())
			r.Delete("/tasks/{id}", g.handleDeleteTask())
			r.Put("/tasks/{id}/completion", g.handleSetTaskCompletion())
		})
	}

	return r
}
