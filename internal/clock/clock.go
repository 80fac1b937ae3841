package clock

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/metrics"
)

// TokenLayout renders the corrected-time token, e.g. 20240102T030405.06Z.
const TokenLayout = "20060102T150405.00Z"

// Querier measures the offset between the local clock and a time source.
type Querier interface {
	Query(ctx context.Context, host string) (time.Duration, error)
}

// Service keeps the running clock offset.
//
// Readers go through an atomic pointer and never block. mu guards the sources
// and state writes and is never held across a network query; syncMu keeps
// syncs from overlapping.
type Service struct {
	querier Querier
	now     func() time.Time
	log     logger.Logger

	state atomic.Pointer[domain.ClockState]

	syncMu  sync.Mutex
	mu      sync.Mutex
	sources domain.ClockSources
}

func NewService(q Querier, sources domain.ClockSources, log logger.Logger) *Service {
	s := &Service{
		querier: q,
		now:     time.Now,
		log:     log,
	}
	s.sources = normalizeSources(sources)
	s.state.Store(&domain.ClockState{Source: s.sources.CurrentSource})
	return s
}

// WithNow overrides the wall clock. Used by tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Sync queries the current source once.
//
// On success the offset is replaced with the measured value. On failure the
// previous offset is kept, the status records the reason and the returned
// error wraps domain.ErrNetworkUnavailable. The returned state is always the
// one now in effect.
func (s *Service) Sync(ctx context.Context) (domain.ClockState, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	source := s.sources.CurrentSource
	s.mu.Unlock()

	offset, err := s.querier.Query(ctx, source)

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := *s.state.Load()
	next := prev
	next.Source = source
	if err != nil {
		next.Status = domain.SyncStatus{OK: false, Reason: err.Error()}
		s.state.Store(&next)
		metrics.ClockSyncTotal.WithLabelValues("failed").Inc()
		s.log.Warn("clock sync failed, keeping last offset",
			logger.String("source", source),
			logger.Float64("offset_seconds", prev.OffsetSeconds),
			logger.Error(err))
		return next, fmt.Errorf("%w: sync with %s: %v", domain.ErrNetworkUnavailable, source, err)
	}

	next.OffsetSeconds = offset.Seconds()
	next.Status = domain.SyncStatus{OK: true}
	next.SyncedAt = s.now().UTC()
	s.state.Store(&next)
	metrics.ClockSyncTotal.WithLabelValues("ok").Inc()
	metrics.ClockOffsetSeconds.Set(next.OffsetSeconds)
	s.log.Info("clock synced",
		logger.String("source", source),
		logger.Float64("offset_seconds", next.OffsetSeconds))
	return next, nil
}

// State returns the clock state currently in effect.
func (s *Service) State() domain.ClockState {
	return *s.state.Load()
}

// CorrectedTime returns local UTC plus the current offset.
func (s *Service) CorrectedTime() time.Time {
	return s.now().UTC().Add(s.state.Load().Offset())
}

// Token returns the corrected time formatted as a timestamp token.
func (s *Service) Token() string {
	return FormatToken(s.CorrectedTime())
}

// FormatToken formats t as YYYYMMDDTHHMMSS.ssZ in UTC.
func FormatToken(t time.Time) string {
	return t.UTC().Format(TokenLayout)
}

// Sources returns a copy of the clock source configuration.
func (s *Service) Sources() domain.ClockSources {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ClockSources{
		KnownSources:  slices.Clone(s.sources.KnownSources),
		CurrentSource: s.sources.CurrentSource,
	}
}

// SetSource selects the source used by the next sync. Unknown hosts are
// appended to the known list. The stored offset is left as is.
func (s *Service) SetSource(host string) (domain.ClockSources, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return domain.ClockSources{}, fmt.Errorf("%w: clock source must not be empty", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	if !slices.Contains(s.sources.KnownSources, host) {
		s.sources.KnownSources = append(s.sources.KnownSources, host)
	}
	s.sources.CurrentSource = host
	s.mu.Unlock()

	s.log.Info("clock source changed", logger.String("source", host))
	return s.Sources(), nil
}

// ReplaceSources swaps the whole source configuration, e.g. after the state
// file was reloaded.
func (s *Service) ReplaceSources(src domain.ClockSources) {
	s.mu.Lock()
	s.sources = normalizeSources(src)
	s.mu.Unlock()
}

// Restore seeds the offset from a previously persisted state. It is ignored
// once a sync has succeeded in this process.
func (s *Service) Restore(st domain.ClockState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.state.Load(); cur.Status.OK || !st.Status.OK {
		return false
	}
	restored := st
	restored.Status = domain.SyncStatus{OK: false, Reason: "restored, not yet synced"}
	s.state.Store(&restored)
	metrics.ClockOffsetSeconds.Set(restored.OffsetSeconds)
	s.log.Info("clock offset restored",
		logger.String("source", st.Source),
		logger.Float64("offset_seconds", st.OffsetSeconds))
	return true
}

func normalizeSources(src domain.ClockSources) domain.ClockSources {
	out := domain.ClockSources{CurrentSource: strings.TrimSpace(src.CurrentSource)}
	for _, h := range src.KnownSources {
		h = strings.TrimSpace(h)
		if h != "" && !slices.Contains(out.KnownSources, h) {
			out.KnownSources = append(out.KnownSources, h)
		}
	}
	if out.CurrentSource == "" && len(out.KnownSources) > 0 {
		out.CurrentSource = out.KnownSources[0]
	}
	if out.CurrentSource != "" && !slices.Contains(out.KnownSources, out.CurrentSource) {
		out.KnownSources = append(out.KnownSources, out.CurrentSource)
	}
	return out
}
