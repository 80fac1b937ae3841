package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
	"github.com/dlcy/iptv-hunan/internal/httpserver/handlers"
)

func init() { Register("playback", Household, registerPlayback) }

func registerPlayback(r chi.Router, d deps.Deps) {
	r.Post("/api/play", handlers.Play(d))
	r.Post("/api/stop", handlers.Stop(d))
	r.Post("/api/fullscreen/toggle", handlers.ToggleFullscreen(d))
	r.Post("/api/fullscreen/enter", handlers.EnterFullscreen(d))
	r.Post("/api/fullscreen/exit", handlers.ExitFullscreen(d))
	r.Get("/api/session", handlers.Session(d))
	r.Get("/api/status", handlers.Status(d))
	r.Get("/api/history", handlers.History(d))
	r.Get("/api/events", handlers.Events(d))
}
