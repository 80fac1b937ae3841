package surface

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dlcy/iptv-hunan/internal/domain"
)

func TestWaitReadyTimesOut(t *testing.T) {
	w := New(domain.SurfaceFullscreen)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.WaitReady(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitReady() error = %v, want deadline exceeded", err)
	}
}

func TestWaitReadyWakesOnRealize(t *testing.T) {
	w := New(domain.SurfaceFullscreen)
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- w.WaitReady(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := w.Realize("0x42"); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}

	// realizing again replaces the id and does not panic on the closed channel
	if err := w.Realize("0x43"); err != nil {
		t.Fatal(err)
	}
	if w.ID() != "0x43" {
		t.Errorf("ID() = %q", w.ID())
	}
	if err := w.Realize(" "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Realize(blank) error = %v", err)
	}
}

func TestVisibilityAndResize(t *testing.T) {
	w := NewRealized(domain.SurfacePrimary, "7")
	w.Show()
	if !w.Visible() {
		t.Error("Show() should make the surface visible")
	}
	w.Hide()
	if w.Visible() {
		t.Error("Hide() should hide the surface")
	}

	if err := w.Resize(1920, 1080); err != nil {
		t.Fatal(err)
	}
	if err := w.Resize(0, 10); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Resize(0,10) error = %v", err)
	}

	info := w.Info()
	want := Info{Kind: domain.SurfacePrimary, WindowID: "7", Ready: true, Size: Size{1920, 1080}}
	if info != want {
		t.Errorf("Info() = %+v, want %+v", info, want)
	}
}
