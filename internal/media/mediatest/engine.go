// Package mediatest provides an in-memory media engine for tests.
package mediatest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/media"
)

// Engine records every call and tracks how many handles are alive at once.
// Zero value is ready to use; set the failure knobs before driving it.
type Engine struct {
	mu sync.Mutex

	// OpenErr, when set, decides whether Open fails for a url and target.
	OpenErr func(url, target string) error
	// RejectPlay makes Play report a negative engine result.
	RejectPlay bool
	// BindErr, when set, decides whether Bind to target fails.
	BindErr func(target string) error
	// HoldPlaying makes WaitPlaying block until Confirm or Fail is called.
	HoldPlaying bool
	// StartPosition is the position reported by new handles.
	StartPosition float64

	handles []*Handle
	events  []string
	live    int
	maxLive int
}

func (e *Engine) Open(_ context.Context, url string, target string, opts media.Options) (media.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, fmt.Sprintf("open %s @%s", url, target))
	if e.OpenErr != nil {
		if err := e.OpenErr(url, target); err != nil {
			return nil, err
		}
	}
	h := &Handle{
		engine:   e,
		id:       len(e.handles) + 1,
		URL:      url,
		Opts:     opts,
		target:   target,
		position: e.StartPosition,
		confirm:  make(chan error, 1),
	}
	e.handles = append(e.handles, h)
	e.live++
	e.maxLive = max(e.maxLive, e.live)
	return h, nil
}

func (e *Engine) record(ev string) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

// Events returns the ordered call log.
func (e *Engine) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

// Live returns the number of handles not yet released.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

// MaxLive returns the highest number of handles ever alive at the same time.
func (e *Engine) MaxLive() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxLive
}

// Handles returns every handle opened so far, oldest first.
func (e *Engine) Handles() []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Handle(nil), e.handles...)
}

// Last returns the most recently opened handle, nil if none.
func (e *Engine) Last() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

// Set updates the failure knobs under the engine lock.
func (e *Engine) Set(fn func(e *Engine)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e)
}

// Handle is a fake media handle.
type Handle struct {
	engine *Engine
	id     int
	URL    string
	Opts   media.Options

	mu       sync.Mutex
	target   string
	playing  bool
	position float64
	released bool
	confirm  chan error
}

func (h *Handle) ev(format string, args ...any) {
	h.engine.record(fmt.Sprintf("h%d ", h.id) + fmt.Sprintf(format, args...))
}

func (h *Handle) Play(context.Context) error {
	h.engine.mu.Lock()
	reject := h.engine.RejectPlay
	h.engine.mu.Unlock()

	h.ev("play")
	if reject {
		return fmt.Errorf("%w: play returned -1", domain.ErrEngineRejected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return fmt.Errorf("%w: handle released", domain.ErrEngineRejected)
	}
	h.playing = true
	return nil
}

func (h *Handle) WaitPlaying(ctx context.Context) error {
	h.engine.mu.Lock()
	hold := h.engine.HoldPlaying
	h.engine.mu.Unlock()

	if !hold {
		return nil
	}
	select {
	case err := <-h.confirm:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrEngineRejected, ctx.Err())
	}
}

// Confirm releases a WaitPlaying blocked by HoldPlaying.
func (h *Handle) Confirm() { h.confirm <- nil }

// Fail makes a blocked WaitPlaying report that the stream never started.
func (h *Handle) Fail() {
	h.confirm <- fmt.Errorf("%w: stream failed", domain.ErrEngineRejected)
}

func (h *Handle) Position(context.Context) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position, nil
}

func (h *Handle) SetPosition(_ context.Context, pos float64) error {
	h.ev("seek %.2f", pos)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.position = pos
	return nil
}

// SetReportedPosition changes what Position returns.
func (h *Handle) SetReportedPosition(pos float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.position = pos
}

func (h *Handle) Bind(_ context.Context, target string) error {
	h.engine.mu.Lock()
	bindErr := h.engine.BindErr
	h.engine.mu.Unlock()

	h.ev("bind %s", target)
	if bindErr != nil {
		if err := bindErr(target); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.target = target
	return nil
}

func (h *Handle) UpdateViewport(context.Context) error {
	h.ev("viewport")
	return nil
}

func (h *Handle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	h.playing = false
	h.mu.Unlock()

	h.ev("release")
	h.engine.mu.Lock()
	h.engine.live--
	h.engine.mu.Unlock()
	return nil
}

// Target returns the window the handle is currently bound to.
func (h *Handle) Target() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

// Released reports whether Release was called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
