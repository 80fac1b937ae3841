// Package media defines the decode/render capability the playback controller
// drives. Implementations live in subpackages.
package media

import (
	"context"
	"strconv"
	"time"
)

// Options is the device and network buffering configuration applied to every
// handle. It is fixed by the controller, not user-tunable: the values are
// chosen to ride over segment discontinuities in the upstream feeds.
type Options struct {
	NetworkCaching time.Duration
	ClockJitter    int
	ClockSynchro   bool
	SeekPercent    bool
}

// DefaultOptions is the buffering configuration used for every stream.
var DefaultOptions = Options{
	NetworkCaching: 1000 * time.Millisecond,
	ClockJitter:    0,
	ClockSynchro:   false,
	SeekPercent:    true,
}

// Args renders o as VLC-style command-line options.
func (o Options) Args() []string {
	args := []string{
		"--network-caching=" + strconv.FormatInt(o.NetworkCaching.Milliseconds(), 10),
		"--clock-jitter=" + strconv.Itoa(o.ClockJitter),
		"--clock-synchro=" + boolFlag(o.ClockSynchro),
	}
	if o.SeekPercent {
		args = append(args, "--ts-seek-percent")
	}
	return args
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Engine creates media handles.
type Engine interface {
	// Open prepares a handle for url rendered into the native window target.
	// Playback does not start until Handle.Play.
	Open(ctx context.Context, url string, target string, opts Options) (Handle, error)
}

// Handle is one media player instance. It is owned by exactly one session
// and must not be used after Release.
type Handle interface {
	// Play starts or resumes playback. A negative engine result is returned
	// as an error wrapping domain.ErrEngineRejected.
	Play(ctx context.Context) error
	// WaitPlaying blocks until the engine reports playing, the engine gives
	// up on the stream, or ctx is done.
	WaitPlaying(ctx context.Context) error
	// Position returns the playback position as a fraction in [0,1].
	Position(ctx context.Context) (float64, error)
	// SetPosition seeks to a fraction in [0,1].
	SetPosition(ctx context.Context, pos float64) error
	// Bind moves the video output to another native window.
	Bind(ctx context.Context, target string) error
	// UpdateViewport asks the engine to redraw after the target was resized.
	UpdateViewport(ctx context.Context) error
	// Release stops playback and frees the handle. It is safe to call twice.
	Release() error
}
