package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/dlcy/iptv-hunan/internal/clock"
	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/logger"
)

type stubQuerier struct {
	mu     sync.Mutex
	calls  int
	offset time.Duration
	err    error
}

func (q *stubQuerier) Query(context.Context, string) (time.Duration, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return q.offset, q.err
}

type update struct {
	st  domain.ClockState
	err error
}

type chanListener chan update

func (l chanListener) ClockUpdated(st domain.ClockState, err error) { l <- update{st, err} }

type memCache struct {
	mu    sync.Mutex
	saved []domain.ClockState
}

func (c *memCache) SaveClockState(_ context.Context, st domain.ClockState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, st)
	return nil
}

func (c *memCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.saved)
}

var testSources = domain.ClockSources{KnownSources: []string{"ntp.example.org"}, CurrentSource: "ntp.example.org"}

func recv(t *testing.T, l chanListener) update {
	t.Helper()
	select {
	case u := <-l:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no clock update received")
		return update{}
	}
}

func TestClockSyncerSyncsOnStartAndCaches(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &stubQuerier{offset: 1500 * time.Millisecond}
	l := make(chanListener, 4)
	cache := &memCache{}
	cs := NewClockSyncer(clock.NewService(q, testSources, logger.Nop()), l, cache, logger.Nop(), time.Hour, time.Second)

	if err := cs.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	u := recv(t, l)
	cs.Stop()

	if u.err != nil {
		t.Fatalf("sync error = %v", u.err)
	}
	if u.st.OffsetSeconds != 1.5 || !u.st.Status.OK {
		t.Errorf("state = %+v, want offset 1.5 and OK", u.st)
	}
	if cache.count() != 1 {
		t.Errorf("cached %d states, want 1", cache.count())
	}
}

func TestClockSyncerFailureKeepsOffsetAndSkipsCache(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &stubQuerier{offset: 2 * time.Second}
	l := make(chanListener, 4)
	cache := &memCache{}
	clk := clock.NewService(q, testSources, logger.Nop())
	cs := NewClockSyncer(clk, l, cache, logger.Nop(), time.Hour, time.Second)

	if err := cs.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer cs.Stop()
	if u := recv(t, l); u.err != nil {
		t.Fatalf("startup sync error = %v", u.err)
	}

	q.mu.Lock()
	q.err = errors.New("i/o timeout")
	q.mu.Unlock()

	st, err := cs.SyncAndWait(context.Background())
	if !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Fatalf("error = %v, want ErrNetworkUnavailable", err)
	}
	if st.OffsetSeconds != 2 {
		t.Errorf("offset = %v after failed sync, want 2", st.OffsetSeconds)
	}
	if u := recv(t, l); u.err == nil {
		t.Error("listener was not told about the failure")
	}
	if cache.count() != 1 {
		t.Errorf("cached %d states, want only the successful one", cache.count())
	}
}

type gateQuerier struct {
	entered chan struct{}
	gate    chan struct{}
}

func (q *gateQuerier) Query(ctx context.Context, _ string) (time.Duration, error) {
	q.entered <- struct{}{}
	select {
	case <-q.gate:
		return time.Second, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestClockSyncerWaitRunsOnWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &gateQuerier{entered: make(chan struct{}, 4), gate: make(chan struct{})}
	l := make(chanListener, 4)
	cs := NewClockSyncer(clock.NewService(q, testSources, logger.Nop()), l, nil, logger.Nop(), time.Hour, 5*time.Second)

	if err := cs.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-q.entered // startup sync is in flight

	// The worker is busy, so a short wait gives up without a second query.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err := cs.SyncAndWait(ctx)
	cancel()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
	select {
	case <-q.entered:
		t.Fatal("a second query ran alongside the worker's")
	default:
	}

	close(q.gate)
	recv(t, l)
	st, err := cs.SyncAndWait(context.Background())
	if err != nil || st.OffsetSeconds != 1 {
		t.Fatalf("SyncAndWait() = %+v, %v", st, err)
	}
	recv(t, l)
	cs.Stop()

	if _, err := cs.SyncAndWait(context.Background()); !errors.Is(err, ErrClockSyncStopped) {
		t.Fatalf("error after Stop = %v, want ErrClockSyncStopped", err)
	}
}

func TestClockSyncerTriggerIsCoalesced(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &stubQuerier{}
	l := make(chanListener, 8)
	cs := NewClockSyncer(clock.NewService(q, testSources, logger.Nop()), l, nil, logger.Nop(), time.Hour, time.Second)

	if !cs.Trigger() {
		t.Fatal("first Trigger() = false, want true")
	}
	if cs.Trigger() {
		t.Fatal("second Trigger() = true while one is queued")
	}

	if err := cs.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	recv(t, l) // startup sync
	recv(t, l) // queued manual sync

	select {
	case u := <-l:
		t.Fatalf("unexpected extra sync: %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
	cs.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.calls != 2 {
		t.Errorf("querier called %d times, want 2", q.calls)
	}
}

func TestClockSyncerStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := make(chanListener, 4)
	cs := NewClockSyncer(clock.NewService(&stubQuerier{}, testSources, logger.Nop()), l, nil, logger.Nop(), time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	if err := cs.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	recv(t, l)
	cancel()
	cs.Stop()
	cs.Stop() // idempotent
}
