package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
)

type componentStatus struct {
	OK         bool   `json:"ok"`
	Count      *int   `json:"count,omitempty"`
	LastReload string `json:"last_reload,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Impact     string `json:"impact,omitempty"`
	Error      string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports every component the player depends on and an overall mode:
// "critical" when nothing can be played, "degraded" when an optional part is
// missing, "optimal" otherwise.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channels := d.Library.Catalog().Count()
		servers := len(d.Library.Servers())
		lastReload := d.Library.Catalog().GetLastReload()
		lastReloadStr := "never"
		if !lastReload.IsZero() {
			lastReloadStr = lastReload.Format("2006-01-02 15:04:05")
		}

		clk := d.Clock.State()
		clockStatus := componentStatus{OK: clk.Status.OK, Mode: clk.Source}
		if !clk.Status.OK {
			clockStatus.Impact = "timestamps-use-last-offset"
			clockStatus.Error = clk.Status.Reason
		}

		components := map[string]componentStatus{
			"channels": {OK: channels > 0, Count: &channels, LastReload: lastReloadStr},
			"servers":  {OK: servers > 0, Count: &servers},
			"clock":    clockStatus,
			"player":   {OK: true, Mode: string(d.Player.Status().State)},
			"redis":    checkHistory(r.Context(), d),
		}
		select {
		case <-d.Player.Done():
			components["player"] = componentStatus{OK: false, Error: "controller stopped"}
		default:
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	if !components["player"].OK || !components["channels"].OK {
		return "critical"
	}
	for _, name := range []string{"servers", "clock", "redis"} {
		if !components[name].OK {
			return "degraded"
		}
	}
	return "optimal"
}

func checkHistory(ctx context.Context, d deps.Deps) componentStatus {
	if d.History == nil {
		return componentStatus{
			OK:     false,
			Mode:   "disabled",
			Impact: "history-and-warm-start-disabled",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.History.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "history-and-warm-start-disabled",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true, Mode: "optimal"}
}
