package pool

import (
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/dlcy/iptv-hunan/internal/domain"
)

// Pool is an ordered, wholesale-replaceable set of host:port origins.
// Duplicates are allowed and weigh the selection accordingly.
type Pool struct {
	mu      sync.RWMutex
	servers []string
	intN    func(n int) int
}

func New(servers []string) *Pool {
	return &Pool{servers: clean(servers), intN: rand.IntN}
}

// WithRand swaps the random source. Used by tests.
func (p *Pool) WithRand(intN func(n int) int) *Pool {
	p.mu.Lock()
	p.intN = intN
	p.mu.Unlock()
	return p
}

// Select picks a server uniformly at random. Every call is independent.
func (p *Pool) Select() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.servers) == 0 {
		return "", domain.ErrEmptyPool
	}
	return p.servers[p.intN(len(p.servers))], nil
}

// Replace swaps the whole server list.
func (p *Pool) Replace(servers []string) {
	next := clean(servers)
	p.mu.Lock()
	p.servers = next
	p.mu.Unlock()
}

// Servers returns a copy of the current list in order.
func (p *Pool) Servers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.servers)
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.servers)
}

func clean(servers []string) []string {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
