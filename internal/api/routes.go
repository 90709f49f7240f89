package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xtrntr/supplylink/internal/models"
)

// Routes builds the API router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.RequestLogger)
	r.Use(middleware.Recoverer)

	// Public endpoints
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/window", h.Window)
	r.Get("/health", h.Health)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Get("/me", h.Me)
		r.Get("/market", h.Market)
		r.Get("/requirements/state/{state}", h.RequirementsByState)
		r.Get("/bids/state/{state}", h.BidsByState)
		r.Get("/deals", h.PastDeals)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireRole(models.RoleVendor))
			r.Get("/requirements/mine", h.MyRequirements)
			r.Post("/requirements", h.CreateRequirement)
			r.Put("/requirements/{id}", h.UpdateRequirement)
			r.Delete("/requirements/{id}", h.DeleteRequirement)
		})

		r.With(h.RequireRole(models.RoleSupplier)).Post("/bids", h.PlaceBid)
	})

	return r
}
