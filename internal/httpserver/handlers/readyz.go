package handlers

import (
	"net/http"

	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Readyz reports whether the playback controller is still accepting commands.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-d.Player.Done():
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Ready: false, Reason: "controller stopped"})
		default:
			writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
		}
	}
}
