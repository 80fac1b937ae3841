// Package library owns the user's editable data: the channel catalog, the
// server pool and the clock sources. Every mutation is applied in memory,
// persisted to the state file and reported on the status surface.
package library

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/dlcy/iptv-hunan/internal/catalog"
	"github.com/dlcy/iptv-hunan/internal/clock"
	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/metrics"
	"github.com/dlcy/iptv-hunan/internal/pool"
	"github.com/dlcy/iptv-hunan/internal/sources/lists"
	"github.com/dlcy/iptv-hunan/internal/store/state"
	"github.com/dlcy/iptv-hunan/internal/urltemplate"
)

// Notifier is the status surface mutations report to.
type Notifier interface {
	Status(op, msg string)
	Failure(op, msg string, err error)
}

// Persister writes the record set. *state.Store satisfies it.
type Persister interface {
	Save(st state.State) error
}

type Library struct {
	catalog  *catalog.Catalog
	pool     *pool.Pool
	clock    *clock.Service
	store    Persister
	notifier Notifier
	log      logger.Logger

	mu sync.Mutex // serializes mutate+save so the file matches memory
}

func New(
	cat *catalog.Catalog,
	p *pool.Pool,
	clk *clock.Service,
	store Persister,
	n Notifier,
	log logger.Logger,
) *Library {
	return &Library{
		catalog:  cat,
		pool:     p,
		clock:    clk,
		store:    store,
		notifier: n,
		log:      log.Named("library"),
	}
}

// Catalog exposes the channel list for lookups.
func (l *Library) Catalog() *catalog.Catalog { return l.catalog }

// Servers returns the current server pool.
func (l *Library) Servers() []string { return l.pool.Servers() }

// Resolve fills a template with a freshly selected server and the current
// corrected-time token. It never caches.
func (l *Library) Resolve(template string) (urltemplate.Resolution, error) {
	return urltemplate.Resolve(template, l.pool, l.clock)
}

// Snapshot returns the record set as it would be persisted.
func (l *Library) Snapshot() state.State {
	return state.State{
		Channels: l.catalog.All(),
		Servers:  l.pool.Servers(),
		Clock:    l.clock.Sources(),
	}
}

// ImportChannels appends the channels found in r to the catalog. Input with
// no valid line fails with domain.ErrMalformedImport and changes nothing.
func (l *Library) ImportChannels(r io.Reader) (lists.ChannelImport, error) {
	imp, err := lists.ParseChannels(r)
	if err != nil {
		metrics.ImportTotal.WithLabelValues("channels", metrics.Result(domain.Kind(err))).Inc()
		l.notifier.Failure("import", "channel import failed", err)
		return imp, err
	}

	l.mu.Lock()
	l.catalog.Append(imp.Channels)
	l.persist()
	l.mu.Unlock()

	metrics.ImportTotal.WithLabelValues("channels", "ok").Inc()
	msg := fmt.Sprintf("imported %d channels", len(imp.Channels))
	if imp.Skipped > 0 {
		msg += fmt.Sprintf(", skipped %d malformed lines", imp.Skipped)
	}
	l.log.Info("channels imported",
		logger.Int("count", len(imp.Channels)),
		logger.Int("skipped", imp.Skipped),
		logger.Int("total", l.catalog.Count()))
	l.notifier.Status("import", msg)
	return imp, nil
}

// ImportServers replaces the server pool wholesale with the servers in r.
func (l *Library) ImportServers(r io.Reader) ([]string, error) {
	servers, err := lists.ParseServers(r)
	if err != nil {
		metrics.ImportTotal.WithLabelValues("servers", metrics.Result(domain.Kind(err))).Inc()
		l.notifier.Failure("import", "server import failed", err)
		return nil, err
	}

	l.mu.Lock()
	l.pool.Replace(servers)
	l.persist()
	l.mu.Unlock()

	metrics.ImportTotal.WithLabelValues("servers", "ok").Inc()
	l.log.Info("servers imported", logger.Strings("servers", servers))
	l.notifier.Status("import", fmt.Sprintf("imported %d servers", len(servers)))
	return l.pool.Servers(), nil
}

// AddChannel templatizes rawURL and appends it under name.
func (l *Library) AddChannel(name, rawURL string) (domain.Channel, error) {
	l.mu.Lock()
	ch, err := l.catalog.Add(name, rawURL)
	if err == nil {
		l.persist()
	}
	l.mu.Unlock()

	if err != nil {
		l.notifier.Failure("channel", "cannot add channel", err)
		return domain.Channel{}, err
	}
	l.notifier.Status("channel", "added "+ch.Name)
	return ch, nil
}

// SetClockSource selects host for the next sync. The offset is untouched.
func (l *Library) SetClockSource(host string) (domain.ClockSources, error) {
	l.mu.Lock()
	src, err := l.clock.SetSource(host)
	if err == nil {
		l.persist()
	}
	l.mu.Unlock()

	if err != nil {
		l.notifier.Failure("sync", "cannot change clock source", err)
		return domain.ClockSources{}, err
	}
	l.notifier.Status("sync", "clock source set to "+src.CurrentSource)
	return src, nil
}

// AddClockSources adds hosts to the known list without selecting them.
func (l *Library) AddClockSources(hosts []string) (domain.ClockSources, error) {
	var clean []string
	for _, h := range hosts {
		if h = strings.TrimSpace(h); h != "" {
			clean = append(clean, h)
		}
	}
	if len(clean) == 0 {
		err := fmt.Errorf("%w: no clock source given", domain.ErrInvalidInput)
		l.notifier.Failure("sync", "cannot add clock sources", err)
		return domain.ClockSources{}, err
	}

	l.mu.Lock()
	src := l.clock.Sources()
	for _, h := range clean {
		if !slices.Contains(src.KnownSources, h) {
			src.KnownSources = append(src.KnownSources, h)
		}
	}
	l.clock.ReplaceSources(src)
	l.persist()
	l.mu.Unlock()

	l.notifier.Status("sync", fmt.Sprintf("%d clock sources known", len(src.KnownSources)))
	return l.clock.Sources(), nil
}

// Apply replaces everything in memory with st, e.g. after the state file was
// edited outside the process. Nothing is written back.
func (l *Library) Apply(st state.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.catalog.Replace(st.Channels)
	l.pool.Replace(st.Servers)
	l.clock.ReplaceSources(st.Clock)
	l.log.Info("state applied",
		logger.Int("channels", len(st.Channels)),
		logger.Int("servers", len(st.Servers)),
		logger.String("clock_source", st.Clock.CurrentSource))
}

// persist saves the current record set. A failed write keeps the in-memory
// change and is reported; callers hold l.mu.
func (l *Library) persist() {
	if l.store == nil {
		return
	}
	err := l.store.Save(l.Snapshot())
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrStateReadOnly) {
		l.notifier.Failure("save", "changes kept for this session only", err)
		return
	}
	l.notifier.Failure("save", "cannot write state file", err)
}
