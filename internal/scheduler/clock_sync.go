package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dlcy/iptv-hunan/internal/clock"
	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/logger"
)

// ClockListener receives every sync outcome. It must not block.
type ClockListener interface {
	ClockUpdated(st domain.ClockState, err error)
}

// ClockCache keeps the last good clock state across restarts.
type ClockCache interface {
	SaveClockState(ctx context.Context, st domain.ClockState) error
}

// ErrClockSyncStopped is returned by SyncAndWait once the worker has exited.
var ErrClockSyncStopped = errors.New("clock sync worker stopped")

type syncResult struct {
	st  domain.ClockState
	err error
}

// ClockSyncer runs the clock sync off the controller: once on start, then
// every interval, plus on demand. Every sync runs on the worker goroutine.
// Triggers are coalesced: while one is pending, further ones are dropped.
type ClockSyncer struct {
	clock    *clock.Service
	listener ClockListener
	cache    ClockCache
	logger   logger.Logger
	interval time.Duration
	timeout  time.Duration

	trigger  chan struct{}
	requests chan chan syncResult
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewClockSyncer creates a clock sync worker. cache may be nil.
func NewClockSyncer(
	clk *clock.Service,
	listener ClockListener,
	cache ClockCache,
	log logger.Logger,
	interval time.Duration,
	timeout time.Duration,
) *ClockSyncer {
	return &ClockSyncer{
		clock:    clk,
		listener: listener,
		cache:    cache,
		logger:   log,
		interval: interval,
		timeout:  timeout,
		trigger:  make(chan struct{}, 1),
		requests: make(chan chan syncResult),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker. The startup sync runs in the background so a
// slow or unreachable time source never delays startup.
func (cs *ClockSyncer) Start(ctx context.Context) error {
	go func() {
		defer close(cs.done)

		cs.syncOnce(ctx)

		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cs.syncOnce(ctx)
			case <-cs.trigger:
				cs.logger.Info("manual clock sync triggered")
				cs.syncOnce(ctx)
			case reply := <-cs.requests:
				cs.logger.Info("manual clock sync requested")
				st, err := cs.syncOnce(ctx)
				reply <- syncResult{st: st, err: err}
			case <-cs.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Trigger requests a sync. It reports false when one is already queued.
func (cs *ClockSyncer) Trigger() bool {
	select {
	case cs.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop stops the worker and waits for an in-flight sync to finish.
func (cs *ClockSyncer) Stop() {
	cs.stopOnce.Do(func() { close(cs.stopCh) })
	<-cs.done
}

// SyncAndWait asks the worker for a sync and waits for its outcome. It fails
// with ctx's error if the worker does not answer in time.
func (cs *ClockSyncer) SyncAndWait(ctx context.Context) (domain.ClockState, error) {
	reply := make(chan syncResult, 1)
	select {
	case cs.requests <- reply:
	case <-cs.done:
		return domain.ClockState{}, ErrClockSyncStopped
	case <-ctx.Done():
		return domain.ClockState{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.st, res.err
	case <-ctx.Done():
		return domain.ClockState{}, ctx.Err()
	}
}

func (cs *ClockSyncer) syncOnce(ctx context.Context) (domain.ClockState, error) {
	syncCtx, cancel := context.WithTimeout(ctx, cs.timeout)
	defer cancel()

	st, err := cs.clock.Sync(syncCtx)
	cs.listener.ClockUpdated(st, err)
	if err != nil || cs.cache == nil {
		return st, err
	}

	if cerr := cs.cache.SaveClockState(ctx, st); cerr != nil {
		cs.logger.Warn("failed to cache clock state in redis", logger.Error(cerr))
	}
	return st, nil
}
