// Package surface models the two rendering targets video can be bound to.
// The host windowing system realizes a surface by reporting its native
// window id; until then the surface is not ready for binding.
package surface

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dlcy/iptv-hunan/internal/domain"
)

// Size is the last reported viewport size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Info is a read-only view of a surface.
type Info struct {
	Kind     domain.SurfaceKind `json:"kind"`
	WindowID string             `json:"window_id,omitempty"`
	Ready    bool               `json:"ready"`
	Visible  bool               `json:"visible"`
	Size     Size               `json:"size"`
}

// Window is one rendering surface.
type Window struct {
	kind domain.SurfaceKind

	mu      sync.Mutex
	id      string
	visible bool
	size    Size
	ready   chan struct{} // closed once a window id is known
}

func New(kind domain.SurfaceKind) *Window {
	return &Window{kind: kind, ready: make(chan struct{})}
}

// NewRealized returns a surface that already has a native window id.
func NewRealized(kind domain.SurfaceKind, id string) *Window {
	w := New(kind)
	if id != "" {
		_ = w.Realize(id)
	}
	return w
}

func (w *Window) Kind() domain.SurfaceKind { return w.kind }

// ID returns the native window id, empty until realized.
func (w *Window) ID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

// Realize records the native window id reported by the host and wakes
// everyone waiting in WaitReady. A later call replaces the id.
func (w *Window) Realize(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: window id must not be empty", domain.ErrInvalidInput)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.id = id
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
	return nil
}

// WaitReady blocks until the surface is realized or ctx is done.
func (w *Window) WaitReady(ctx context.Context) error {
	w.mu.Lock()
	ready := w.ready
	w.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s surface not ready: %w", w.kind, ctx.Err())
	}
}

func (w *Window) Show() {
	w.mu.Lock()
	w.visible = true
	w.mu.Unlock()
}

func (w *Window) Hide() {
	w.mu.Lock()
	w.visible = false
	w.mu.Unlock()
}

func (w *Window) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// Resize records a new viewport size.
func (w *Window) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: size must be positive, got %dx%d", domain.ErrInvalidInput, width, height)
	}
	w.mu.Lock()
	w.size = Size{Width: width, Height: height}
	w.mu.Unlock()
	return nil
}

func (w *Window) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	ready := false
	select {
	case <-w.ready:
		ready = true
	default:
	}
	return Info{Kind: w.kind, WindowID: w.id, Ready: ready, Visible: w.visible, Size: w.size}
}
