// Package vlc drives an external VLC process through its rc interface.
package vlc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/media"
	"github.com/dlcy/iptv-hunan/internal/utils"
)

const (
	startTimeout = 5 * time.Second
	killTimeout  = 2 * time.Second
	pollInterval = 100 * time.Millisecond
)

// Engine spawns one VLC process per handle.
type Engine struct {
	bin        string
	runtimeDir string
	log        logger.Logger
}

func New(bin, runtimeDir string, log logger.Logger) *Engine {
	return &Engine{bin: bin, runtimeDir: runtimeDir, log: log}
}

// Check verifies the VLC binary can be found. Without it nothing can be
// rendered, so callers treat a failure as fatal at startup.
func (e *Engine) Check() error {
	path, err := exec.LookPath(e.bin)
	if err != nil {
		return fmt.Errorf("vlc binary %q not found: %w", e.bin, err)
	}
	e.log.Info("media engine available", logger.String("vlc", path))
	return nil
}

func (e *Engine) Open(ctx context.Context, url string, target string, opts media.Options) (media.Handle, error) {
	h := &handle{engine: e, url: url, opts: opts}
	if err := h.spawn(ctx, target); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEngineRejected, err)
	}
	return h, nil
}

type handle struct {
	engine *Engine
	url    string
	opts   media.Options

	mu       sync.Mutex
	cmd      *exec.Cmd
	rc       *rcClient
	sock     string
	exited   chan struct{}
	loaded   bool // url was added to the current process's playlist
	released bool

	// resumeAt is the elapsed time in seconds of a live stream at the last
	// Bind. The relaunched process starts over at the URL's starttime, so it
	// is sought back once playback resumes.
	resumeAt int
}

func drawableArg(target string) []string {
	if target == "" {
		return nil
	}
	switch runtime.GOOS {
	case "windows":
		return []string{"--drawable-hwnd=" + target}
	case "darwin":
		return []string{"--drawable-nsobject=" + target}
	default:
		return []string{"--drawable-xid=" + target}
	}
}

func (h *handle) args(sock, target string) []string {
	args := []string{"-I", "dummy", "--extraintf", "rc", "--rc-unix", sock, "--no-video-title-show"}
	args = append(args, h.opts.Args()...)
	return append(args, drawableArg(target)...)
}

// spawn starts a fresh process bound to target. Caller holds mu or owns h exclusively.
func (h *handle) spawn(ctx context.Context, target string) error {
	sock := filepath.Join(h.engine.runtimeDir, "iptv-vlc-"+uuid.NewString()[:8]+".sock")
	cmd := exec.Command(h.engine.bin, h.args(sock, target)...) // #nosec G204
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start vlc: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		h.engine.log.Debug("vlc process exited", logger.String("sock", sock), logger.Error(err))
		close(exited)
	}()

	dialCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	rc, err := dialRC(dialCtx, sock)
	if err != nil {
		terminate(cmd, exited)
		_ = os.Remove(sock)
		return err
	}

	h.cmd, h.rc, h.sock, h.exited, h.loaded = cmd, rc, sock, exited, false
	h.engine.log.Debug("vlc process started",
		logger.Int("pid", cmd.Process.Pid),
		logger.String("target", target))
	return nil
}

func (h *handle) Play(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.aliveLocked(); err != nil {
		return err
	}
	cmd := "play"
	if !h.loaded {
		cmd = "add " + h.url
	}
	if _, err := h.rc.do(ctx, cmd); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEngineRejected, err)
	}
	h.loaded = true
	return nil
}

func (h *handle) WaitPlaying(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		h.mu.Lock()
		err := h.aliveLocked()
		var playing int
		if err == nil {
			playing, err = h.rc.intValue(ctx, "is_playing")
		}
		h.mu.Unlock()

		switch {
		case err != nil && ctx.Err() == nil:
			return fmt.Errorf("%w: %v", domain.ErrEngineRejected, err)
		case playing == 1:
			return h.resume(ctx)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: stream did not start: %v", domain.ErrEngineRejected, ctx.Err())
		case <-ticker.C:
		}
	}
}

// resume seeks a relaunched live stream back to where Bind left it. A failed
// seek is logged; playback keeps running from the stream's start.
func (h *handle) resume(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.resumeAt <= 0 || h.aliveLocked() != nil {
		return nil
	}
	at := h.resumeAt
	h.resumeAt = 0
	if _, err := h.rc.do(ctx, "seek "+strconv.Itoa(at)); err != nil {
		h.engine.log.Warn("vlc resume seek failed", logger.Int("seconds", at), logger.Error(err))
	}
	return nil
}

// Position is a fraction of the known length. Live streams report no length
// and always return 0; Bind keeps their elapsed time itself.
func (h *handle) Position(ctx context.Context) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.aliveLocked(); err != nil {
		return 0, err
	}
	length, err := h.rc.intValue(ctx, "get_length")
	if err != nil {
		return 0, err
	}
	if length <= 0 {
		return 0, nil // live stream without a known duration
	}
	cur, err := h.rc.intValue(ctx, "get_time")
	if err != nil {
		return 0, err
	}
	return min(max(float64(cur)/float64(length), 0), 1), nil
}

func (h *handle) SetPosition(ctx context.Context, pos float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.aliveLocked(); err != nil {
		return err
	}
	pct := int(min(max(pos, 0), 1) * 100)
	_, err := h.rc.do(ctx, "seek "+strconv.Itoa(pct)+"%")
	return err
}

// Bind restarts the process on the new target. rc cannot move an existing
// video output, so the stream is re-added on the next Play.
func (h *handle) Bind(ctx context.Context, target string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return errReleased
	}
	h.captureResumeLocked(ctx)
	h.stopLocked()
	return h.spawn(ctx, target)
}

// captureResumeLocked records the elapsed time of a live stream before its
// process is replaced. Streams with a known length are restored by the
// caller through SetPosition instead.
func (h *handle) captureResumeLocked(ctx context.Context) {
	h.resumeAt = 0
	if h.rc == nil || !h.loaded || h.aliveLocked() != nil {
		return
	}
	length, err := h.rc.intValue(ctx, "get_length")
	if err != nil || length > 0 {
		return
	}
	elapsed, err := h.rc.intValue(ctx, "get_time")
	if err != nil {
		h.engine.log.Debug("cannot read elapsed time before rebind", logger.Error(err))
		return
	}
	h.resumeAt = elapsed
}

// UpdateViewport is a no-op: VLC follows the size of the drawable itself.
func (h *handle) UpdateViewport(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aliveLocked()
}

func (h *handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true
	h.stopLocked()
	return nil
}

var errReleased = errors.New("vlc handle already released")

func (h *handle) aliveLocked() error {
	if h.released {
		return errReleased
	}
	select {
	case <-h.exited:
		return fmt.Errorf("%w: vlc process exited", domain.ErrEngineRejected)
	default:
		return nil
	}
}

func (h *handle) stopLocked() {
	if h.cmd == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	_, _ = h.rc.do(ctx, "quit")
	cancel()
	utils.Close(h.rc, h.engine.log, "vlc rc socket")
	terminate(h.cmd, h.exited)
	_ = os.Remove(h.sock)
	h.cmd, h.rc = nil, nil
}

// terminate sends SIGTERM and escalates to SIGKILL after killTimeout.
func terminate(cmd *exec.Cmd, exited <-chan struct{}) {
	select {
	case <-exited:
		return
	default:
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(killTimeout):
		_ = cmd.Process.Kill()
		<-exited
	}
}
