package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
	"github.com/dlcy/iptv-hunan/internal/httpserver/handlers"
)

func init() { Register("clock", Household, registerClock) }

func registerClock(r chi.Router, d deps.Deps) {
	r.Get("/api/clock", handlers.Clock(d))
	r.Post("/api/clock/sync", handlers.SyncClock(d))
	r.Put("/api/clock/source", handlers.SetClockSource(d))
	r.Post("/api/clock/sources", handlers.AddClockSources(d))
}
