// Package player owns the playback session. All session state lives in a
// single goroutine (Run); other goroutines talk to it through commands and
// events, and read it through an atomically published snapshot.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/media"
	"github.com/dlcy/iptv-hunan/internal/metrics"
	"github.com/dlcy/iptv-hunan/internal/probe"
	"github.com/dlcy/iptv-hunan/internal/urltemplate"
)

// Surface is a rendering target the session can be bound to.
type Surface interface {
	Kind() domain.SurfaceKind
	ID() string
	Show()
	Hide()
	Visible() bool
	WaitReady(ctx context.Context) error
}

// Prober runs the advisory origin check for a resolved URL.
type Prober interface {
	Probe(ctx context.Context, rawURL string) probe.Result
	InspectPlaylist(ctx context.Context, playlistURL string) (*probe.PlaylistInfo, error)
}

// Notifier is the status and error surface.
type Notifier interface {
	Status(op, msg string)
	Failure(op, msg string, err error)
}

// Resolver turns a channel template into a playable URL. It is called on
// every play attempt and every re-resolving handoff.
type Resolver func(template string) (urltemplate.Resolution, error)

type Options struct {
	Policy               domain.HandoffPolicy
	Media                media.Options
	PlayConfirmTimeout   time.Duration
	SurfaceSettleTimeout time.Duration
	SeekSettleTimeout    time.Duration
	ShutdownTimeout      time.Duration

	// OnPlayed, when set, receives one record per play attempt outcome.
	// It is called on its own goroutine.
	OnPlayed func(domain.PlayRecord)
}

// Deps are the collaborators of a Controller. Prober may be nil.
type Deps struct {
	Engine   media.Engine
	Resolve  Resolver
	Prober   Prober
	Notifier Notifier
	Primary  Surface
	Full     Surface
	Log      logger.Logger
}

type command struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

type eventKind int

const (
	evPlayConfirm eventKind = iota
	evProbe
	evClock
)

type event struct {
	kind eventKind

	gen       uint64 // evPlayConfirm: handle generation
	sessionID string // evProbe
	err       error

	probe   probe.Result
	channel string
	clock   domain.ClockState
}

// session is the loop-owned playback state.
type session struct {
	id           string
	channel      *domain.Channel
	resolvedURL  string
	state        domain.SessionState
	surface      domain.SurfaceKind
	lastPosition float64
	startedAt    time.Time

	handle      media.Handle
	gen         uint64
	stopWatch   context.CancelFunc
	recordOnRun bool // report a play record when the handle confirms
}

type Controller struct {
	deps     Deps
	opts     Options
	surfaces map[domain.SurfaceKind]Surface
	log      logger.Logger

	cmds   chan command
	events chan event
	done   chan struct{}

	handoffBusy atomic.Bool
	snap        atomic.Pointer[domain.SessionSnapshot]
	clock       atomic.Pointer[domain.ClockState]

	s session // owned by Run
}

func New(deps Deps, opts Options) *Controller {
	c := &Controller{
		deps: deps,
		opts: opts,
		surfaces: map[domain.SurfaceKind]Surface{
			domain.SurfacePrimary:    deps.Primary,
			domain.SurfaceFullscreen: deps.Full,
		},
		log:    deps.Log.Named("player"),
		cmds:   make(chan command),
		events: make(chan event, 16),
		done:   make(chan struct{}),
		s:      session{state: domain.StateIdle, surface: domain.SurfacePrimary},
	}
	c.publish()
	return c
}

// Run processes commands and events until ctx is done, then tears the
// session down and returns.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	c.surfaces[domain.SurfacePrimary].Show()
	c.surfaces[domain.SurfaceFullscreen].Hide()

	for {
		select {
		case cmd := <-c.cmds:
			cmd.fn(ctx)
			c.publish()
			close(cmd.done)
		case ev := <-c.events:
			c.handleEvent(ctx, ev)
			c.publish()
		case <-ctx.Done():
			c.shutdown()
			c.publish()
			return nil
		}
	}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

// submit runs fn on the controller goroutine and waits for it.
func (c *Controller) submit(ctx context.Context, fn func(ctx context.Context)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return domain.ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-cmd.done
	return nil
}

// post delivers an event from a worker goroutine.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Status returns the latest published snapshot.
func (c *Controller) Status() domain.SessionSnapshot {
	snap := *c.snap.Load()
	snap.Handoff = c.handoffBusy.Load()
	return snap
}

// Clock returns the last clock state delivered to the controller.
func (c *Controller) Clock() (domain.ClockState, bool) {
	st := c.clock.Load()
	if st == nil {
		return domain.ClockState{}, false
	}
	return *st, true
}

func (c *Controller) publish() {
	snap := &domain.SessionSnapshot{
		ID:           c.s.id,
		ResolvedURL:  c.s.resolvedURL,
		State:        c.s.state,
		Surface:      c.s.surface,
		LastPosition: c.s.lastPosition,
		StartedAt:    c.s.startedAt,
	}
	if c.s.channel != nil {
		ch := *c.s.channel
		snap.Channel = &ch
	}
	c.snap.Store(snap)
	metrics.SetSessionState(string(c.s.state))
}

// Start tears down any active session, resolves ch and hands the URL to the
// media engine. It returns once the engine accepted the URL; the session is
// then Loading until the engine confirms playback.
func (c *Controller) Start(ctx context.Context, ch domain.Channel) (domain.SessionSnapshot, error) {
	var err error
	if subErr := c.submit(ctx, func(ctx context.Context) { err = c.start(ctx, ch) }); subErr != nil {
		return c.Status(), subErr
	}
	return c.Status(), err
}

// Stop ends the active session. Calling it while Loading is safe.
func (c *Controller) Stop(ctx context.Context) (domain.SessionSnapshot, error) {
	var err error
	if subErr := c.submit(ctx, func(ctx context.Context) {
		if !c.s.state.Active() {
			err = domain.ErrNotPlaying
			return
		}
		c.stopSession(ctx)
		c.deps.Notifier.Status("stop", "playback stopped")
	}); subErr != nil {
		return c.Status(), subErr
	}
	return c.Status(), err
}

// Resize forwards a viewport change of kind to the engine when the session
// is rendering there. Failures are logged only.
func (c *Controller) Resize(ctx context.Context, kind domain.SurfaceKind) error {
	return c.submit(ctx, func(ctx context.Context) {
		if !c.s.state.Active() || c.s.surface != kind || c.s.handle == nil {
			return
		}
		opCtx, cancel := context.WithTimeout(ctx, c.opts.SurfaceSettleTimeout)
		defer cancel()
		if err := c.s.handle.UpdateViewport(opCtx); err != nil {
			c.log.Debug("viewport update failed", logger.String("surface", string(kind)), logger.Error(err))
		}
	})
}

// ClockUpdated hands a sync result to the controller without blocking the
// sync worker. An update is dropped if the controller is backed up.
func (c *Controller) ClockUpdated(st domain.ClockState, err error) {
	select {
	case c.events <- event{kind: evClock, clock: st, err: err}:
	case <-c.done:
	default:
		c.log.Warn("controller busy, dropping clock update")
	}
}

func (c *Controller) start(ctx context.Context, ch domain.Channel) error {
	if c.s.state.Active() {
		c.stopSession(ctx)
	}

	c.s = session{
		id:          uuid.NewString(),
		channel:     &ch,
		state:       domain.StateLoading,
		surface:     c.s.surface,
		startedAt:   time.Now(),
		gen:         c.s.gen,
		recordOnRun: true,
	}
	c.publish()

	res, err := c.deps.Resolve(ch.Template)
	c.s.resolvedURL = res.URL
	if err != nil {
		return c.failStart(fmt.Errorf("resolve %q: %w", ch.Name, err))
	}
	c.log.Debug("resolved play url",
		logger.String("channel", ch.Name),
		logger.String("url", res.URL),
		logger.String("server", res.Server))

	c.probeAsync(c.s.id, ch.Name, res.URL)

	target := c.surfaces[c.s.surface]
	if err := c.waitReady(ctx, target); err != nil {
		c.log.Warn("surface not realized, engine will open its own window", logger.Error(err))
	}
	h, err := c.openAndPlay(ctx, res.URL, target.ID())
	if err != nil {
		return c.failStart(err)
	}
	c.adopt(h)
	c.deps.Notifier.Status("play", "loading "+ch.Name)
	return nil
}

func (c *Controller) openAndPlay(ctx context.Context, url, target string) (media.Handle, error) {
	h, err := c.deps.Engine.Open(ctx, url, target, c.opts.Media)
	if err != nil {
		return nil, asRejected(err)
	}
	if err := h.Play(ctx); err != nil {
		_ = h.Release()
		return nil, asRejected(err)
	}
	return h, nil
}

func asRejected(err error) error {
	if errors.Is(err, domain.ErrEngineRejected) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrEngineRejected, err)
}

// adopt makes h the session's handle and starts watching for the engine's
// playing confirmation.
func (c *Controller) adopt(h media.Handle) {
	c.s.handle = h
	c.watch(h)
}

// watch arms a new play-confirm watcher for h. Any earlier watcher is
// cancelled and its result discarded through the generation counter.
func (c *Controller) watch(h media.Handle) {
	if c.s.stopWatch != nil {
		c.s.stopWatch()
	}
	c.s.gen++
	gen := c.s.gen

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.PlayConfirmTimeout)
	c.s.stopWatch = cancel
	go func() {
		defer cancel()
		err := h.WaitPlaying(ctx)
		if errors.Is(ctx.Err(), context.Canceled) {
			return // handle was torn down
		}
		c.post(event{kind: evPlayConfirm, gen: gen, err: err})
	}()
}

func (c *Controller) failStart(err error) error {
	name := ""
	if c.s.channel != nil {
		name = c.s.channel.Name
	}
	c.releaseHandle()
	c.record(err)
	c.s.state = domain.StateIdle
	c.s.channel = nil
	c.deps.Notifier.Failure("play", "cannot play "+name, err)
	return err
}

// stopSession captures the position, returns to the primary surface and
// releases the handle.
func (c *Controller) stopSession(ctx context.Context) {
	if c.s.state == domain.StatePlaying && c.s.handle != nil {
		opCtx, cancel := context.WithTimeout(ctx, c.opts.SeekSettleTimeout)
		if pos, err := c.s.handle.Position(opCtx); err == nil {
			c.s.lastPosition = pos
		}
		cancel()
	}
	if c.s.surface == domain.SurfaceFullscreen {
		c.returnToPrimary(ctx)
	}
	c.releaseHandle()
	c.s.state = domain.StateStopped
	c.s.channel = nil
	c.s.resolvedURL = ""
}

func (c *Controller) returnToPrimary(ctx context.Context) {
	primary := c.surfaces[domain.SurfacePrimary]
	primary.Show()
	if err := c.waitReady(ctx, primary); err != nil {
		c.log.Warn("primary surface not ready while leaving fullscreen", logger.Error(err))
	}
	c.surfaces[domain.SurfaceFullscreen].Hide()
	c.s.surface = domain.SurfacePrimary
}

func (c *Controller) releaseHandle() {
	if c.s.stopWatch != nil {
		c.s.stopWatch()
		c.s.stopWatch = nil
	}
	if c.s.handle == nil {
		return
	}
	if err := c.s.handle.Release(); err != nil {
		c.log.Warn("releasing media handle failed", logger.Error(err))
	}
	c.s.handle = nil
}

func (c *Controller) waitReady(ctx context.Context, s Surface) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.SurfaceSettleTimeout)
	defer cancel()
	return s.WaitReady(ctx)
}

func (c *Controller) record(err error) {
	kind := domain.Kind(err)
	metrics.PlayTotal.WithLabelValues(metrics.Result(kind)).Inc()
	if c.opts.OnPlayed == nil || c.s.channel == nil {
		return
	}
	rec := domain.PlayRecord{
		SessionID:   c.s.id,
		Channel:     c.s.channel.Name,
		ResolvedURL: c.s.resolvedURL,
		Result:      metrics.Result(kind),
		At:          time.Now().UTC(),
	}
	go c.opts.OnPlayed(rec)
}

func (c *Controller) probeAsync(sessionID, channel, url string) {
	if c.deps.Prober == nil {
		return
	}
	if _, err := probe.Origin(url); err != nil {
		return // rtp:// and friends have no origin to check
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.PlayConfirmTimeout)
		defer cancel()
		res := c.deps.Prober.Probe(ctx, url)
		if res.Status == probe.Available && probe.IsPlaylistURL(url) {
			info, err := c.deps.Prober.InspectPlaylist(ctx, url)
			if err != nil {
				c.log.Debug("playlist inspection failed", logger.String("url", url), logger.Error(err))
			} else {
				c.log.Debug("playlist inspected",
					logger.Bool("master", info.Master),
					logger.Int("variants", info.Variants),
					logger.Int("segments", info.Segments),
					logger.Float64("target_duration", info.TargetDuration))
			}
		}
		c.post(event{kind: evProbe, sessionID: sessionID, channel: channel, probe: res})
	}()
}

func (c *Controller) handleEvent(ctx context.Context, ev event) {
	switch ev.kind {
	case evPlayConfirm:
		if ev.gen != c.s.gen || c.s.handle == nil {
			return // stale confirmation for a handle already torn down
		}
		if ev.err != nil {
			name := c.s.channel.Name
			c.record(asRejected(ev.err))
			c.releaseHandle()
			if c.s.surface == domain.SurfaceFullscreen {
				c.returnToPrimary(ctx)
			}
			c.s.state = domain.StateIdle
			c.s.channel = nil
			c.deps.Notifier.Failure("play", "playback of "+name+" failed", asRejected(ev.err))
			return
		}
		if c.s.state == domain.StateLoading {
			c.s.state = domain.StatePlaying
			c.s.lastPosition = 0
			c.deps.Notifier.Status("play", "playing "+c.s.channel.Name)
		}
		if c.s.recordOnRun {
			c.s.recordOnRun = false
			c.record(nil)
		}

	case evProbe:
		if ev.sessionID != c.s.id {
			return
		}
		if ev.probe.Status == probe.Available {
			c.deps.Notifier.Status("probe", "server available, playing "+ev.channel)
		} else {
			c.deps.Notifier.Status("probe", fmt.Sprintf("server check failed (%s), still trying %s", ev.probe.Reason, ev.channel))
		}

	case evClock:
		st := ev.clock
		c.clock.Store(&st)
		if ev.err != nil {
			c.deps.Notifier.Failure("sync", "clock sync with "+st.Source+" failed, keeping last offset", ev.err)
			return
		}
		c.deps.Notifier.Status("sync", fmt.Sprintf("clock synced with %s, offset %+.3fs", st.Source, st.OffsetSeconds))
	}
}

func (c *Controller) shutdown() {
	timeout := c.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if c.s.state.Active() {
		c.stopSession(ctx)
	} else if c.s.surface == domain.SurfaceFullscreen {
		c.returnToPrimary(ctx)
	}
	c.releaseHandle()
	c.log.Info("playback controller stopped")
}
