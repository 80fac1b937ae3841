package player

import (
	"context"
	"fmt"
	"time"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/media"
	"github.com/dlcy/iptv-hunan/internal/metrics"
)

// ToggleFullscreen moves the playing session to the other surface.
func (c *Controller) ToggleFullscreen(ctx context.Context) (domain.SessionSnapshot, error) {
	return c.retarget(ctx, "")
}

// EnterFullscreen is a no-op when already fullscreen.
func (c *Controller) EnterFullscreen(ctx context.Context) (domain.SessionSnapshot, error) {
	return c.retarget(ctx, domain.SurfaceFullscreen)
}

// ExitFullscreen is a no-op when already on the primary surface.
func (c *Controller) ExitFullscreen(ctx context.Context) (domain.SessionSnapshot, error) {
	return c.retarget(ctx, domain.SurfacePrimary)
}

// retarget runs one handoff. A second request while one is queued or running
// is rejected with domain.ErrHandoffInProgress.
func (c *Controller) retarget(ctx context.Context, want domain.SurfaceKind) (domain.SessionSnapshot, error) {
	if !c.handoffBusy.CompareAndSwap(false, true) {
		return c.Status(), domain.ErrHandoffInProgress
	}

	var err error
	subErr := c.submit(ctx, func(ctx context.Context) {
		defer c.handoffBusy.Store(false)
		err = c.handoff(ctx, want)
	})
	if subErr != nil {
		c.handoffBusy.Store(false)
		return c.Status(), subErr
	}
	return c.Status(), err
}

func (c *Controller) handoff(ctx context.Context, want domain.SurfaceKind) error {
	if c.s.state != domain.StatePlaying || c.s.handle == nil {
		return domain.ErrNotPlaying
	}
	from := c.s.surface
	to := from.Other()
	if want != "" && want == from {
		return nil
	}

	policy := c.opts.Policy
	start := time.Now()
	var err error
	if policy == domain.HandoffReresolve {
		err = c.handoffReresolve(ctx, from, to)
	} else {
		policy = domain.HandoffPreserve
		err = c.handoffPreserve(ctx, from, to)
	}
	metrics.HandoffTotal.WithLabelValues(string(policy), metrics.Result(domain.Kind(err))).Inc()
	metrics.HandoffDuration.WithLabelValues(string(policy)).Observe(time.Since(start).Seconds())

	if err != nil {
		c.deps.Notifier.Failure("handoff", fmt.Sprintf("cannot switch to %s surface", to), err)
		return err
	}
	c.deps.Notifier.Status("handoff", fmt.Sprintf("playing on %s surface", to))
	return nil
}

// handoffPreserve rebinds the existing handle and seeks back to where
// playback was.
func (c *Controller) handoffPreserve(ctx context.Context, from, to domain.SurfaceKind) error {
	src, dst := c.surfaces[from], c.surfaces[to]
	h := c.s.handle

	dst.Show()
	if err := c.waitReady(ctx, dst); err != nil {
		return c.restore(ctx, src, dst, false, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opts.SeekSettleTimeout)
	pos, err := h.Position(opCtx)
	cancel()
	if err != nil {
		c.log.Warn("cannot read playback position, resuming from live edge", logger.Error(err))
		pos = 0
	}

	if err := h.Bind(ctx, dst.ID()); err != nil {
		return c.restore(ctx, src, dst, true, err)
	}
	if err := h.Play(ctx); err != nil {
		return c.restore(ctx, src, dst, true, err)
	}
	if err := c.waitResumed(ctx, h); err != nil {
		return c.restore(ctx, src, dst, true, err)
	}
	if pos > 0 {
		c.seek(ctx, pos)
	}

	src.Hide()
	c.s.surface = to
	c.s.lastPosition = pos
	return nil
}

// waitResumed blocks until the rebound output plays again. The previous
// confirmation no longer says anything about the new output, so its watcher
// is invalidated first.
func (c *Controller) waitResumed(ctx context.Context, h media.Handle) error {
	if c.s.stopWatch != nil {
		c.s.stopWatch()
		c.s.stopWatch = nil
	}
	c.s.gen++

	ctx, cancel := context.WithTimeout(ctx, c.opts.PlayConfirmTimeout)
	defer cancel()
	if err := h.WaitPlaying(ctx); err != nil {
		return fmt.Errorf("playback did not resume: %w", err)
	}
	return nil
}

// seek restores pos on output that is already playing. A failed seek leaves
// playback running from wherever the engine resumed.
func (c *Controller) seek(ctx context.Context, pos float64) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.SeekSettleTimeout)
	defer cancel()

	if err := c.s.handle.SetPosition(ctx, pos); err != nil {
		c.log.Warn("seek after handoff failed", logger.Float64("position", pos), logger.Error(err))
	}
}

// restore puts the session back on src after a failed preserve handoff. When
// the handle was already moved it is rebound to src; if even that fails the
// session cannot continue and ends in Idle.
func (c *Controller) restore(ctx context.Context, src, dst Surface, rebind bool, cause error) error {
	src.Show()
	dst.Hide()

	if rebind {
		err := c.s.handle.Bind(ctx, src.ID())
		if err == nil {
			err = c.s.handle.Play(ctx)
		}
		if err != nil {
			c.abort(err)
			return fmt.Errorf("%w: %v (restore failed: %v)", domain.ErrHandoffFailed, cause, err)
		}
		// The restored output confirms asynchronously; if it never plays
		// the session ends through the usual play-confirm path.
		c.watch(c.s.handle)
	}
	return fmt.Errorf("%w: %v", domain.ErrHandoffFailed, cause)
}

// handoffReresolve plays a freshly resolved URL on the target surface. The old
// handle is released before the new one is created so the two never coexist.
func (c *Controller) handoffReresolve(ctx context.Context, from, to domain.SurfaceKind) error {
	src, dst := c.surfaces[from], c.surfaces[to]
	ch := *c.s.channel

	dst.Show()
	if err := c.waitReady(ctx, dst); err != nil {
		return c.restore(ctx, src, dst, false, err)
	}

	c.releaseHandle()

	url, err := c.resolveAndPlay(ctx, ch, dst.ID())
	if err != nil {
		src.Show()
		dst.Hide()
		if _, rerr := c.resolveAndPlay(ctx, ch, src.ID()); rerr != nil {
			c.abort(rerr)
			return fmt.Errorf("%w: %v (restore failed: %v)", domain.ErrHandoffFailed, err, rerr)
		}
		return fmt.Errorf("%w: %v", domain.ErrHandoffFailed, err)
	}

	src.Hide()
	c.s.surface = to
	c.s.resolvedURL = url
	c.s.lastPosition = 0
	return nil
}

// resolveAndPlay resolves ch afresh and adopts a new playing handle on target.
func (c *Controller) resolveAndPlay(ctx context.Context, ch domain.Channel, target string) (string, error) {
	res, err := c.deps.Resolve(ch.Template)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ch.Name, err)
	}
	c.log.Debug("resolved play url",
		logger.String("channel", ch.Name),
		logger.String("url", res.URL),
		logger.String("server", res.Server))

	h, err := c.openAndPlay(ctx, res.URL, target)
	if err != nil {
		return "", err
	}
	c.adopt(h)
	c.s.resolvedURL = res.URL
	return res.URL, nil
}

// abort ends a session that lost its handle during a handoff.
func (c *Controller) abort(err error) {
	c.log.Error("session lost during handoff", logger.Error(err))
	c.releaseHandle()
	c.s.state = domain.StateIdle
	c.s.channel = nil
	c.s.surface = domain.SurfacePrimary
	c.surfaces[domain.SurfacePrimary].Show()
	c.surfaces[domain.SurfaceFullscreen].Hide()
}
