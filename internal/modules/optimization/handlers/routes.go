package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimization/runs", func(r chi.Router) {
		r.Post("/", h.HandleCreateRun)
		r.Get("/", h.HandleListRuns)
		r.Get("/{id}", h.HandleGetRun)
		r.Delete("/{id}", h.HandleDeleteRun)
		r.Get("/{id}/frontier.png", h.HandleFrontierChart)
		r.Get("/{id}/density.png", h.HandleDensityChart)
		r.Get("/{id}/allocation.png", h.HandleAllocationChart)
	})
	r.Post("/prices/sync", h.HandleSyncPrices)
}
