package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dlcy/iptv-hunan/internal/domain"
)

// maxBodyBytes bounds JSON bodies and imported list files.
const maxBodyBytes = 4 << 20

type errorResponse struct {
	Error   string                  `json:"error"`
	Kind    string                  `json:"kind"`
	Session *domain.SessionSnapshot `json:"session,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Kind: domain.Kind(err)})
}

// writeSessionError reports a playback failure together with the session as
// it is now, so the caller can still show e.g. a partially resolved URL.
func writeSessionError(w http.ResponseWriter, err error, snap domain.SessionSnapshot) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Kind: domain.Kind(err), Session: &snap})
}

func statusFor(err error) int {
	switch domain.Kind(err) {
	case "InvalidInput", "MalformedImport":
		return http.StatusBadRequest
	case "UnknownChannel":
		return http.StatusNotFound
	case "NotPlaying", "HandoffInProgress", "StateReadOnly":
		return http.StatusConflict
	case "EmptyPool":
		return http.StatusUnprocessableEntity
	case "EngineRejected", "HandoffFailed":
		return http.StatusBadGateway
	case "NetworkUnavailable", "ControllerClosed":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", domain.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
