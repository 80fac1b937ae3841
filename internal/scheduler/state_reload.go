package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/store/state"
)

// DefaultReloadDebounce groups the burst of events editors produce on save.
const DefaultReloadDebounce = 200 * time.Millisecond

// Notifier is the status surface reloads report to.
type Notifier interface {
	Status(op, msg string)
	Failure(op, msg string, err error)
}

// StateReloader re-reads the state file when it changes on disk or when a
// reload is requested, and hands the new record set to apply.
type StateReloader struct {
	store         *state.Store
	apply         func(state.State)
	notifier      Notifier
	logger        logger.Logger
	watch         bool
	debounce      time.Duration
	manualTrigger chan struct{}

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewStateReloader creates a reloader. With watch false only manual
// triggers cause a reload.
func NewStateReloader(
	store *state.Store,
	apply func(state.State),
	notifier Notifier,
	log logger.Logger,
	watch bool,
	manualTrigger chan struct{},
) *StateReloader {
	return &StateReloader{
		store:         store,
		apply:         apply,
		notifier:      notifier,
		logger:        log,
		watch:         watch,
		debounce:      DefaultReloadDebounce,
		manualTrigger: manualTrigger,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins watching. The parent directory is watched rather than the
// file itself so atomic replaces (rename over the old file) are seen.
func (sr *StateReloader) Start(ctx context.Context) error {
	var watcher *fsnotify.Watcher
	if sr.watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create state file watcher: %w", err)
		}
		if err := w.Add(filepath.Dir(sr.store.Path())); err != nil {
			_ = w.Close()
			return fmt.Errorf("failed to watch %s: %w", filepath.Dir(sr.store.Path()), err)
		}
		watcher = w
	}

	go sr.loop(ctx, watcher)
	return nil
}

func (sr *StateReloader) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(sr.done)

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		defer watcher.Close()
		events, errs = watcher.Events, watcher.Errors
	}

	target := filepath.Clean(sr.store.Path())
	var pending <-chan time.Time
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			pending = time.After(sr.debounce)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			sr.logger.Warn("state file watcher error", logger.Error(err))
		case <-pending:
			pending = nil
			sr.logger.Info("state file changed on disk", logger.String("path", target))
			_ = sr.Reload()
		case <-sr.manualTrigger:
			sr.logger.Info("manual state reload triggered")
			_ = sr.Reload()
		case <-sr.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the reloader and waits for the loop to exit.
func (sr *StateReloader) Stop() {
	sr.stopOnce.Do(func() { close(sr.stopCh) })
	<-sr.done
}

// Reload reads the file once and applies it when it differs from what this
// process last read or wrote.
func (sr *StateReloader) Reload() error {
	st, changed, err := sr.store.Reload()
	if err != nil {
		sr.notifier.Failure("reload", "state file not applied", err)
		return err
	}
	if !changed {
		sr.logger.Debug("state file unchanged")
		return nil
	}

	sr.apply(st)
	sr.notifier.Status("reload", fmt.Sprintf("reloaded %d channels, %d servers", len(st.Channels), len(st.Servers)))
	return nil
}
