package handlers

import (
	"net/http"
	"time"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
)

type playerHealth struct {
	Running bool                `json:"running"`
	State   domain.SessionState `json:"state"`
	Surface domain.SurfaceKind  `json:"surface"`
}

type clockHealth struct {
	Source string `json:"source"`
	Synced bool   `json:"synced"`
}

type healthzResponse struct {
	Status        string       `json:"status"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Version       string       `json:"version,omitempty"`
	Commit        string       `json:"commit,omitempty"`
	BuildDate     string       `json:"build_date,omitempty"`
	GoVersion     string       `json:"go_version,omitempty"`
	Player        playerHealth `json:"player"`
	Clock         clockHealth  `json:"clock"`
}

// Healthz answers 200 while the playback controller runs and 503 once it has
// stopped, since the box can no longer play anything. A clock that never
// synced does not fail the check.
func Healthz(d deps.Deps) http.HandlerFunc {
	start := d.StartTime
	return func(w http.ResponseWriter, r *http.Request) {
		running := true
		select {
		case <-d.Player.Done():
			running = false
		default:
		}
		snap := d.Player.Status()
		clk := d.Clock.State()

		resp := healthzResponse{
			Status:        "ok",
			UptimeSeconds: time.Since(start).Seconds(),
			Version:       d.Version,
			Commit:        d.Commit,
			BuildDate:     d.BuildDate,
			GoVersion:     d.GoVersion,
			Player:        playerHealth{Running: running, State: snap.State, Surface: snap.Surface},
			Clock:         clockHealth{Source: clk.Source, Synced: clk.Status.OK},
		}
		code := http.StatusOK
		if !running {
			resp.Status = "down"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
