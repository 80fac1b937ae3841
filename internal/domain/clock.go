package domain

import "time"

// SyncStatus is the outcome of the most recent clock sync attempt.
type SyncStatus struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// String renders the status the way it is shown on the status surface.
func (s SyncStatus) String() string {
	if s.OK {
		return "ok"
	}
	if s.Reason == "" {
		return "never synced"
	}
	return "failed: " + s.Reason
}

// ClockState is the offset between the local clock and a trusted time source.
//
// OffsetSeconds is added to local UTC to approximate the source's time. It is
// replaced, never accumulated, on each successful sync and survives failed
// syncs unchanged.
type ClockState struct {
	OffsetSeconds float64    `json:"offset_seconds"`
	Source        string     `json:"source"`
	Status        SyncStatus `json:"status"`
	SyncedAt      time.Time  `json:"synced_at,omitempty"`
}

// Offset returns OffsetSeconds as a time.Duration.
func (c ClockState) Offset() time.Duration {
	return time.Duration(c.OffsetSeconds * float64(time.Second))
}

// ClockSources is the clock-source section of the persisted configuration.
type ClockSources struct {
	KnownSources  []string `json:"known_sources" yaml:"known_sources"`
	CurrentSource string   `json:"current_source" yaml:"current_source"`
}
