package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
	"github.com/dlcy/iptv-hunan/internal/surface"
)

type registerSurfaceRequest struct {
	WindowID string `json:"window_id"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

type resizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func surfaceFor(d deps.Deps, r *http.Request) (*surface.Window, error) {
	kind := domain.SurfaceKind(chi.URLParam(r, "kind"))
	s, ok := d.Surfaces[kind]
	if !kind.Valid() || !ok {
		return nil, fmt.Errorf("%w: unknown surface %q", domain.ErrInvalidInput, kind)
	}
	return s, nil
}

// Surfaces lists both rendering surfaces.
func Surfaces(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := make([]surface.Info, 0, len(d.Surfaces))
		for _, kind := range []domain.SurfaceKind{domain.SurfacePrimary, domain.SurfaceFullscreen} {
			if s, ok := d.Surfaces[kind]; ok {
				out = append(out, s.Info())
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// RegisterSurface records the native window id the host created for a surface.
// Anyone waiting for the surface to be ready is released.
func RegisterSurface(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := surfaceFor(d, r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req registerSurfaceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := s.Realize(req.WindowID); err != nil {
			writeError(w, err)
			return
		}
		if req.Width > 0 && req.Height > 0 {
			_ = s.Resize(req.Width, req.Height)
		}
		writeJSON(w, http.StatusOK, s.Info())
	}
}

// ResizeSurface records a viewport change and forwards it to the engine when
// the session renders on that surface.
func ResizeSurface(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := surfaceFor(d, r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req resizeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := s.Resize(req.Width, req.Height); err != nil {
			writeError(w, err)
			return
		}
		if err := d.Player.Resize(r.Context(), s.Kind()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Info())
	}
}
