package handlers

import (
	"net/http"

	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
	"github.com/dlcy/iptv-hunan/internal/logger"
)

type triggerResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

// Reload asks the state reloader to re-read the state file.
func Reload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case d.ReloadTrigger <- struct{}{}:
			d.Logger.Info("manual state reload triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, triggerResponse{Triggered: true, Message: "reload triggered"})
		default:
			writeJSON(w, http.StatusTooManyRequests, triggerResponse{Message: "reload already pending"})
		}
	}
}
