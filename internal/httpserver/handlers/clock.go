package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dlcy/iptv-hunan/internal/clock"
	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
)

type clockResponse struct {
	Local         string              `json:"local"`
	UTC           string              `json:"utc"`
	Corrected     string              `json:"corrected"`
	Token         string              `json:"token"`
	OffsetSeconds float64             `json:"offset_seconds"`
	Source        string              `json:"source"`
	Status        string              `json:"status"`
	SyncedAt      *time.Time          `json:"synced_at,omitempty"`
	Sources       domain.ClockSources `json:"sources"`
}

type clockSourceRequest struct {
	Source string `json:"source"`
}

type clockSourcesRequest struct {
	Sources []string `json:"sources"`
}

// Clock shows local, UTC and corrected time with the token a play would use now.
func Clock(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, clockView(d))
	}
}

func clockView(d deps.Deps) clockResponse {
	now := d.Now()
	st := d.Clock.State()
	corrected := now.UTC().Add(st.Offset())
	resp := clockResponse{
		Local:         now.Local().Format("2006-01-02 15:04:05"),
		UTC:           now.UTC().Format("2006-01-02 15:04:05"),
		Corrected:     corrected.Format("2006-01-02 15:04:05.00"),
		Token:         clock.FormatToken(corrected),
		OffsetSeconds: st.OffsetSeconds,
		Source:        st.Source,
		Status:        st.Status.String(),
		Sources:       d.Clock.Sources(),
	}
	if !st.SyncedAt.IsZero() {
		synced := st.SyncedAt
		resp.SyncedAt = &synced
	}
	return resp
}

// SyncClock queues a sync; with ?wait=true it waits for the worker's result.
func SyncClock(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if wait := strings.ToLower(r.URL.Query().Get("wait")); wait == "1" || wait == "true" {
			if _, err := d.ClockSync.SyncAndWait(r.Context()); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, clockView(d))
			return
		}

		if !d.ClockSync.Trigger() {
			writeJSON(w, http.StatusTooManyRequests, triggerResponse{Message: "clock sync already pending"})
			return
		}
		writeJSON(w, http.StatusAccepted, triggerResponse{Triggered: true, Message: "clock sync triggered"})
	}
}

// SetClockSource selects the source of the next sync. The offset is kept.
func SetClockSource(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clockSourceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		src, err := d.Library.SetClockSource(req.Source)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, src)
	}
}

// AddClockSources adds hosts to the known source list.
func AddClockSources(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clockSourcesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		src, err := d.Library.AddClockSources(req.Sources)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, src)
	}
}
