package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
	"github.com/dlcy/iptv-hunan/internal/notify"
)

type playRequest struct {
	Name  string `json:"name,omitempty"`
	Index *int   `json:"index,omitempty"`
}

type statusResponse struct {
	Session domain.SessionSnapshot `json:"session"`
	Clock   domain.ClockState      `json:"clock"`
	Last    *notify.Event          `json:"last_status,omitempty"`
}

// Play starts the channel named in the body, by name or list index. It
// returns once the engine accepted the stream; the session is then loading.
func Play(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req playRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}

		var (
			ch  domain.Channel
			err error
		)
		switch {
		case req.Index != nil:
			ch, err = d.Library.Catalog().At(*req.Index)
		case req.Name != "":
			ch, err = d.Library.Catalog().Get(req.Name)
		default:
			err = fmt.Errorf("%w: name or index is required", domain.ErrInvalidInput)
		}
		if err != nil {
			writeError(w, err)
			return
		}

		snap, err := d.Player.Start(r.Context(), ch)
		if err != nil {
			writeSessionError(w, err, snap)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func Stop(d deps.Deps) http.HandlerFunc {
	return sessionCommand(d.Player.Stop)
}

func ToggleFullscreen(d deps.Deps) http.HandlerFunc {
	return sessionCommand(d.Player.ToggleFullscreen)
}

func EnterFullscreen(d deps.Deps) http.HandlerFunc {
	return sessionCommand(d.Player.EnterFullscreen)
}

func ExitFullscreen(d deps.Deps) http.HandlerFunc {
	return sessionCommand(d.Player.ExitFullscreen)
}

func sessionCommand(cmd func(ctx context.Context) (domain.SessionSnapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := cmd(r.Context())
		if err != nil {
			writeSessionError(w, err, snap)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// Session returns the current playback snapshot.
func Session(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Player.Status())
	}
}

// Status combines the session, the clock and the last status line.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{Session: d.Player.Status(), Clock: d.Clock.State()}
		if last := d.Notifier.Last(); !last.Time.IsZero() {
			resp.Last = &last
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// History lists recent play attempts, newest first.
func History(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.History == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "play history needs redis", Kind: "Disabled"})
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput))
				return
			}
			limit = n
		}
		records, err := d.History.History(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}
