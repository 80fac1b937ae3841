package domain

import "errors"

// Error taxonomy. Every failure in the playback core wraps exactly one of
// these so callers can classify it with errors.Is.
var (
	// ErrNetworkUnavailable covers clock sync and server probe failures.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrEmptyPool is returned when {server} must be resolved with no servers configured.
	ErrEmptyPool = errors.New("no servers configured")
	// ErrEngineRejected is returned when the media engine refuses a resolved URL.
	ErrEngineRejected = errors.New("media engine rejected stream")
	// ErrMalformedImport is returned when an import file has no valid records.
	ErrMalformedImport = errors.New("no valid data in import")
	// ErrHandoffFailed is returned when a surface retarget could not complete.
	ErrHandoffFailed = errors.New("surface handoff failed")

	ErrHandoffInProgress = errors.New("surface handoff already in progress")
	ErrNotPlaying        = errors.New("no active playback")
	ErrUnknownChannel    = errors.New("unknown channel")
	ErrInvalidInput      = errors.New("invalid input")
	ErrStateReadOnly     = errors.New("state file is read-only for this session")
	ErrControllerClosed  = errors.New("controller is shut down")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrNetworkUnavailable, "NetworkUnavailable"},
	{ErrEmptyPool, "EmptyPool"},
	{ErrEngineRejected, "EngineRejected"},
	{ErrMalformedImport, "MalformedImport"},
	{ErrHandoffFailed, "HandoffFailed"},
	{ErrHandoffInProgress, "HandoffInProgress"},
	{ErrNotPlaying, "NotPlaying"},
	{ErrUnknownChannel, "UnknownChannel"},
	{ErrInvalidInput, "InvalidInput"},
	{ErrStateReadOnly, "StateReadOnly"},
	{ErrControllerClosed, "ControllerClosed"},
}

// Kind returns the taxonomy name of err, "Internal" for unclassified errors
// and "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
