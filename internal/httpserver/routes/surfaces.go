package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
	"github.com/dlcy/iptv-hunan/internal/httpserver/handlers"
)

func init() { Register("surfaces", Household, registerSurfaces) }

func registerSurfaces(r chi.Router, d deps.Deps) {
	r.Get("/api/surfaces", handlers.Surfaces(d))
	r.Put("/api/surfaces/{kind}", handlers.RegisterSurface(d))
	r.Post("/api/surfaces/{kind}/resize", handlers.ResizeSurface(d))
}
