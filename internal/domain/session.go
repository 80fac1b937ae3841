package domain

import "time"

// SessionState is a state of the playback state machine.
type SessionState string

const (
	StateIdle    SessionState = "idle"
	StateLoading SessionState = "loading"
	StatePlaying SessionState = "playing"
	StateStopped SessionState = "stopped"
)

// Active reports whether the state owns a live media handle.
func (s SessionState) Active() bool {
	return s == StateLoading || s == StatePlaying
}

// SurfaceKind names one of the two mutually exclusive rendering targets.
type SurfaceKind string

const (
	SurfacePrimary    SurfaceKind = "primary"
	SurfaceFullscreen SurfaceKind = "fullscreen"
)

// Other returns the opposite surface.
func (k SurfaceKind) Other() SurfaceKind {
	if k == SurfaceFullscreen {
		return SurfacePrimary
	}
	return SurfaceFullscreen
}

// Valid reports whether k is a known surface kind.
func (k SurfaceKind) Valid() bool {
	return k == SurfacePrimary || k == SurfaceFullscreen
}

// HandoffPolicy selects how a playing session moves between surfaces.
type HandoffPolicy string

const (
	// HandoffPreserve rebinds the existing handle and seeks back to the captured position.
	HandoffPreserve HandoffPolicy = "preserve"
	// HandoffReresolve re-runs template resolution and plays a fresh handle.
	HandoffReresolve HandoffPolicy = "reresolve"
)

// SessionSnapshot is a read-only copy of the playback session, safe to hand
// out of the controller goroutine.
type SessionSnapshot struct {
	ID           string       `json:"id,omitempty"`
	Channel      *Channel     `json:"channel,omitempty"`
	ResolvedURL  string       `json:"resolved_url,omitempty"`
	State        SessionState `json:"state"`
	Surface      SurfaceKind  `json:"surface"`
	LastPosition float64      `json:"last_position"`
	StartedAt    time.Time    `json:"started_at,omitempty"`
	Handoff      bool         `json:"handoff_in_progress"`
}

// PlayRecord is one entry of the play history.
type PlayRecord struct {
	SessionID   string    `json:"session_id"`
	Channel     string    `json:"channel"`
	ResolvedURL string    `json:"resolved_url"`
	Result      string    `json:"result"`
	At          time.Time `json:"at"`
}
