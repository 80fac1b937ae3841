package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
	"github.com/dlcy/iptv-hunan/internal/httpserver/mw"
	"github.com/dlcy/iptv-hunan/internal/logger"
)

// Registrar mounts one group of endpoints.
type Registrar func(r chi.Router, d deps.Deps)

// Access says who may reach a route group.
type Access int

const (
	// Public groups are reachable from anywhere, e.g. liveness checks.
	Public Access = iota
	// Household groups drive the set-top box and only answer the configured
	// client addresses and host names.
	Household
)

type group struct {
	name   string
	access Access
	reg    Registrar
}

var groups []group

// Register adds a named route group. Called from init in each route file.
func Register(name string, access Access, reg Registrar) {
	groups = append(groups, group{name: name, access: access, reg: reg})
}

// RegisterAll mounts every group on r. The household guard is built once and
// shared by all restricted groups.
func RegisterAll(r chi.Router, d deps.Deps) {
	guard := householdGuard(d)
	for _, g := range groups {
		sub := r
		if g.access == Household {
			sub = r.With(guard...)
		}
		g.reg(sub, d)
		d.Logger.Debug("route group mounted",
			logger.String("group", g.name),
			logger.Bool("restricted", g.access == Household))
	}
}

func householdGuard(d deps.Deps) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		mw.AllowClients(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
	}
}
