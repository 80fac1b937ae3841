package catalog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/urltemplate"
)

// Catalog is the ordered, in-memory channel list.
// Names are not required to be unique; lookups by name return the first match.
type Catalog struct {
	mu         sync.RWMutex
	channels   []domain.Channel
	usage      map[string]int64 // channel name -> play count
	lastReload time.Time
}

func New(channels []domain.Channel) *Catalog {
	c := &Catalog{usage: make(map[string]int64)}
	c.Replace(channels)
	return c
}

// Replace swaps the whole list, e.g. after the state file was reloaded.
func (c *Catalog) Replace(channels []domain.Channel) {
	next := make([]domain.Channel, len(channels))
	copy(next, channels)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = next
	c.lastReload = time.Now()
}

// Add stores a user-entered channel. Name and URL only need to be non-empty;
// the URL is templatized before storage.
func (c *Catalog) Add(name, rawURL string) (domain.Channel, error) {
	name = strings.TrimSpace(name)
	rawURL = strings.TrimSpace(rawURL)
	if name == "" {
		return domain.Channel{}, fmt.Errorf("%w: channel name must not be empty", domain.ErrInvalidInput)
	}
	if rawURL == "" {
		return domain.Channel{}, fmt.Errorf("%w: channel URL must not be empty", domain.ErrInvalidInput)
	}

	ch := domain.Channel{Name: name, Template: urltemplate.Templatize(rawURL)}
	c.mu.Lock()
	c.channels = append(c.channels, ch)
	c.mu.Unlock()
	return ch, nil
}

// Append adds already-templatized channels at the end of the list.
func (c *Catalog) Append(channels []domain.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = append(c.channels, channels...)
}

// Get returns the first channel with the given name.
func (c *Catalog) Get(name string) (domain.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ch := range c.channels {
		if ch.Name == name {
			return ch, nil
		}
	}
	return domain.Channel{}, fmt.Errorf("%w: %q", domain.ErrUnknownChannel, name)
}

// At returns the channel at position i in list order.
func (c *Catalog) At(i int) (domain.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i < 0 || i >= len(c.channels) {
		return domain.Channel{}, fmt.Errorf("%w: index %d out of range [0,%d)", domain.ErrUnknownChannel, i, len(c.channels))
	}
	return c.channels[i], nil
}

// All returns a snapshot of the list in order.
func (c *Catalog) All() []domain.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Channel, len(c.channels))
	copy(out, c.channels)
	return out
}

func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels)
}

// IncrementUsage bumps the play counter of a channel.
func (c *Catalog) IncrementUsage(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage[name]++
}

// SetUsage seeds play counters, e.g. from Redis at startup.
func (c *Catalog) SetUsage(usage map[string]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, n := range usage {
		c.usage[name] = n
	}
}

// GetLastReload returns the time of the last wholesale replace.
func (c *Catalog) GetLastReload() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReload
}
