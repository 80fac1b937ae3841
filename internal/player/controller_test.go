package player

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/media"
	"github.com/dlcy/iptv-hunan/internal/media/mediatest"
	"github.com/dlcy/iptv-hunan/internal/pool"
	"github.com/dlcy/iptv-hunan/internal/surface"
	"github.com/dlcy/iptv-hunan/internal/urltemplate"
)

var (
	cctv1  = domain.Channel{Name: "CCTV1 高清", Template: "http://{server}/000000002000/201500000063/1000.m3u8?starttime={timestamp}"}
	hunan  = domain.Channel{Name: "湖南卫视", Template: "http://{server}/000000002000/201500000067/1000.m3u8?starttime={timestamp}"}
	rtp    = domain.Channel{Name: "测试RTP-CCTV", Template: "rtp://239.76.253.151:9000"}
	playRE = regexp.MustCompile(`^http://(a:1|b:2)/000000002000/201500000063/1000\.m3u8\?starttime=\d{8}T\d{6}\.\d{2}Z$`)
)

type fixedToken string

func (f fixedToken) Token() string { return string(f) }

type recNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recNotifier) Status(op, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, op+": "+msg)
}

func (n *recNotifier) Failure(op, msg string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, "FAIL "+op+" ["+domain.Kind(err)+"]: "+msg)
}

func (n *recNotifier) has(prefix string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.ContainsFunc(n.events, func(e string) bool { return strings.HasPrefix(e, prefix) })
}

type harness struct {
	c       *Controller
	engine  *mediatest.Engine
	primary *surface.Window
	full    *surface.Window
	notes   *recNotifier
	pool    *pool.Pool
	played  chan domain.PlayRecord
	cancel  context.CancelFunc
}

func newHarness(t *testing.T, mutate ...func(*Options, *harness)) *harness {
	t.Helper()
	h := &harness{
		engine:  &mediatest.Engine{},
		primary: surface.NewRealized(domain.SurfacePrimary, "100"),
		full:    surface.NewRealized(domain.SurfaceFullscreen, "200"),
		notes:   &recNotifier{},
		pool:    pool.New([]string{"a:1", "b:2"}),
		played:  make(chan domain.PlayRecord, 16),
	}
	opts := Options{
		Policy:               domain.HandoffPreserve,
		Media:                media.DefaultOptions,
		PlayConfirmTimeout:   time.Second,
		SurfaceSettleTimeout: 50 * time.Millisecond,
		SeekSettleTimeout:    200 * time.Millisecond,
		OnPlayed:             func(r domain.PlayRecord) { h.played <- r },
	}
	for _, m := range mutate {
		m(&opts, h)
	}

	h.c = New(Deps{
		Engine: h.engine,
		Resolve: func(tpl string) (urltemplate.Resolution, error) {
			return urltemplate.Resolve(tpl, h.pool, fixedToken("20240102T030405.06Z"))
		},
		Notifier: h.notes,
		Primary:  h.primary,
		Full:     h.full,
		Log:      logger.Nop(),
	}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { _ = h.c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.c.Done()
	})
	return h
}

func (h *harness) waitState(t *testing.T, want domain.SessionState) {
	t.Helper()
	require.Eventually(t, func() bool { return h.c.Status().State == want }, 2*time.Second, 5*time.Millisecond,
		"state never became %s (is %s)", want, h.c.Status().State)
}

func (h *harness) play(t *testing.T, ch domain.Channel) {
	t.Helper()
	_, err := h.c.Start(context.Background(), ch)
	require.NoError(t, err)
	h.waitState(t, domain.StatePlaying)
}

func indexOf(events []string, prefix string) int {
	return slices.IndexFunc(events, func(e string) bool { return strings.HasPrefix(e, prefix) })
}

func TestStartResolvesAndPlays(t *testing.T) {
	h := newHarness(t)

	snap, err := h.c.Start(context.Background(), cctv1)
	require.NoError(t, err)
	require.NotEmpty(t, snap.ID)
	require.Contains(t, []domain.SessionState{domain.StateLoading, domain.StatePlaying}, snap.State)

	h.waitState(t, domain.StatePlaying)
	snap = h.c.Status()
	require.Regexp(t, playRE, snap.ResolvedURL)
	require.Equal(t, domain.SurfacePrimary, snap.Surface)
	require.Equal(t, 0.0, snap.LastPosition)
	require.Equal(t, cctv1.Name, snap.Channel.Name)

	hd := h.engine.Last()
	require.Equal(t, snap.ResolvedURL, hd.URL)
	require.Equal(t, media.DefaultOptions, hd.Opts)
	require.Equal(t, "100", hd.Target())

	rec := <-h.played
	require.Equal(t, "ok", rec.Result)
	require.Equal(t, snap.ID, rec.SessionID)
	require.Eventually(t, func() bool { return h.notes.has("play: playing " + cctv1.Name) }, time.Second, 5*time.Millisecond)
}

func TestLiteralTemplatePlaysUnchanged(t *testing.T) {
	h := newHarness(t)
	h.play(t, rtp)
	require.Equal(t, rtp.Template, h.engine.Last().URL)
}

func TestStartWhilePlayingTearsDownOnce(t *testing.T) {
	h := newHarness(t)
	h.play(t, cctv1)
	first := h.engine.Last()

	h.play(t, hunan)

	events := h.engine.Events()
	release := indexOf(events, "h1 release")
	openB := indexOf(events, "open http://")
	openB = indexOf(events[openB+1:], "open ") + openB + 1
	require.Greater(t, release, 0, "first handle never released: %v", events)
	require.Less(t, release, openB, "second handle opened before teardown: %v", events)

	releases := 0
	for _, e := range events {
		if e == "h1 release" {
			releases++
		}
	}
	require.Equal(t, 1, releases)
	require.True(t, first.Released())
	require.Equal(t, 1, h.engine.Live())
	require.Equal(t, 1, h.engine.MaxLive(), "two handles coexisted")
	require.Equal(t, hunan.Name, h.c.Status().Channel.Name)
}

func TestEngineRejectedRevertsToIdle(t *testing.T) {
	h := newHarness(t)
	h.engine.Set(func(e *mediatest.Engine) { e.RejectPlay = true })

	snap, err := h.c.Start(context.Background(), cctv1)
	require.ErrorIs(t, err, domain.ErrEngineRejected)
	require.Equal(t, domain.StateIdle, snap.State)
	require.Nil(t, snap.Channel)
	require.Equal(t, 0, h.engine.Live(), "partially created handle leaked")
	require.True(t, h.notes.has("FAIL play [EngineRejected]"))

	rec := <-h.played
	require.Equal(t, "EngineRejected", rec.Result)

	// no automatic retry
	time.Sleep(20 * time.Millisecond)
	require.Len(t, h.engine.Handles(), 1)
}

func TestOpenErrorIsEngineRejected(t *testing.T) {
	h := newHarness(t)
	h.engine.Set(func(e *mediatest.Engine) {
		e.OpenErr = func(string, string) error { return errors.New("no video output") }
	})

	_, err := h.c.Start(context.Background(), cctv1)
	require.ErrorIs(t, err, domain.ErrEngineRejected)
	require.Equal(t, domain.StateIdle, h.c.Status().State)
}

func TestEmptyPoolIsReportedWithoutCrashing(t *testing.T) {
	h := newHarness(t)
	h.pool.Replace(nil)

	snap, err := h.c.Start(context.Background(), cctv1)
	require.ErrorIs(t, err, domain.ErrEmptyPool)
	require.Equal(t, domain.StateIdle, snap.State)
	require.Equal(t, "http://{server}/000000002000/201500000063/1000.m3u8?starttime=20240102T030405.06Z", snap.ResolvedURL)
	require.Empty(t, h.engine.Events(), "engine must not be asked to open an unresolved URL")
	require.True(t, h.notes.has("FAIL play [EmptyPool]"))

	// the controller keeps serving
	h.pool.Replace([]string{"a:1"})
	h.play(t, cctv1)
}

func TestStopDuringLoadingTearsDown(t *testing.T) {
	h := newHarness(t)
	h.engine.Set(func(e *mediatest.Engine) { e.HoldPlaying = true })

	snap, err := h.c.Start(context.Background(), cctv1)
	require.NoError(t, err)
	require.Equal(t, domain.StateLoading, snap.State)

	snap, err = h.c.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.StateStopped, snap.State)
	require.Equal(t, 0, h.engine.Live())

	// a late confirmation for the torn-down handle changes nothing
	h.engine.Last().Confirm()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, domain.StateStopped, h.c.Status().State)
}

func TestConfirmFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.engine.Set(func(e *mediatest.Engine) { e.HoldPlaying = true })

	_, err := h.c.Start(context.Background(), cctv1)
	require.NoError(t, err)
	h.engine.Last().Fail()

	h.waitState(t, domain.StateIdle)
	require.Equal(t, 0, h.engine.Live())
	require.Eventually(t, func() bool { return h.notes.has("FAIL play [EngineRejected]") }, time.Second, 5*time.Millisecond)
}

func TestStopRecordsPosition(t *testing.T) {
	h := newHarness(t)
	h.play(t, cctv1)
	h.engine.Last().SetReportedPosition(0.25)

	snap, err := h.c.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.StateStopped, snap.State)
	require.Equal(t, 0.25, snap.LastPosition)
	require.Nil(t, snap.Channel)
	require.Empty(t, snap.ResolvedURL)

	_, err = h.c.Stop(context.Background())
	require.ErrorIs(t, err, domain.ErrNotPlaying)
}

func TestClockUpdateIsReported(t *testing.T) {
	h := newHarness(t)

	h.c.ClockUpdated(domain.ClockState{OffsetSeconds: 1.5, Source: "ntp.aliyun.com", Status: domain.SyncStatus{OK: true}}, nil)
	require.Eventually(t, func() bool { return h.notes.has("sync: clock synced with ntp.aliyun.com") }, time.Second, 5*time.Millisecond)

	st, ok := h.c.Clock()
	require.True(t, ok)
	require.Equal(t, 1.5, st.OffsetSeconds)

	h.c.ClockUpdated(domain.ClockState{OffsetSeconds: 1.5, Source: "pool.ntp.org"}, fmt.Errorf("%w: timeout", domain.ErrNetworkUnavailable))
	require.Eventually(t, func() bool { return h.notes.has("FAIL sync [NetworkUnavailable]") }, time.Second, 5*time.Millisecond)
}

func TestResizeForwardsToActiveSurface(t *testing.T) {
	h := newHarness(t)
	h.play(t, cctv1)

	require.NoError(t, h.c.Resize(context.Background(), domain.SurfaceFullscreen))
	require.NoError(t, h.c.Resize(context.Background(), domain.SurfacePrimary))

	var viewports int
	for _, e := range h.engine.Events() {
		if e == "h1 viewport" {
			viewports++
		}
	}
	require.Equal(t, 1, viewports)
}

func TestShutdownReleasesHandle(t *testing.T) {
	h := newHarness(t)
	h.play(t, cctv1)
	_, err := h.c.EnterFullscreen(context.Background())
	require.NoError(t, err)

	h.cancel()
	<-h.c.Done()

	require.Equal(t, 0, h.engine.Live())
	require.True(t, h.primary.Visible())
	require.False(t, h.full.Visible())

	_, err = h.c.Start(context.Background(), cctv1)
	require.ErrorIs(t, err, domain.ErrControllerClosed)
}
