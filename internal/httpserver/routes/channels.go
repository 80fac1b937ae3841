package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
	"github.com/dlcy/iptv-hunan/internal/httpserver/handlers"
)

func init() { Register("channels", Household, registerChannels) }

func registerChannels(r chi.Router, d deps.Deps) {
	r.Get("/api/channels", handlers.Channels(d))
	r.Post("/api/channels", handlers.AddChannel(d))
	r.Get("/api/channels/find", handlers.FindChannels(d))
	r.Get("/api/resolve", handlers.ResolveChannel(d))
	r.Get("/api/servers", handlers.Servers(d))
	r.Post("/api/import/channels", handlers.ImportChannels(d))
	r.Post("/api/import/servers", handlers.ImportServers(d))
}
