// Package probe performs advisory reachability checks against stream origins.
// A negative result is reported, never enforced.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/metrics"
)

type Status string

const (
	Available   Status = "available"
	Unavailable Status = "unavailable"
)

// Result is the outcome of one probe.
type Result struct {
	Origin string `json:"origin"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Err returns nil for an available origin and an error wrapping
// domain.ErrNetworkUnavailable otherwise.
func (r Result) Err() error {
	if r.Status == Available {
		return nil
	}
	return fmt.Errorf("%w: %s: %s", domain.ErrNetworkUnavailable, r.Origin, r.Reason)
}

type Prober struct {
	client  *http.Client
	timeout time.Duration
}

func New(timeout time.Duration) *Prober {
	return &Prober{
		client: &http.Client{
			// the origin root may redirect to a portal; one hop is enough to judge reachability
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 1 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		timeout: timeout,
	}
}

// WithClient swaps the HTTP client. Used by tests.
func (p *Prober) WithClient(c *http.Client) *Prober {
	p.client = c
	return p
}

// Origin returns scheme://host[:port] of an http(s) URL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse %q: %v", domain.ErrInvalidInput, rawURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an http(s) URL", domain.ErrInvalidInput, rawURL)
	}
	return scheme + "://" + u.Host, nil
}

// Probe checks the origin of rawURL: a HEAD request first and, only when HEAD
// fails at the transport level, one streaming GET. Anything but 200 OK is
// Unavailable.
func (p *Prober) Probe(ctx context.Context, rawURL string) Result {
	origin, err := Origin(rawURL)
	if err != nil {
		return p.record(Result{Origin: rawURL, Status: Unavailable, Reason: err.Error()})
	}

	status, err := p.do(ctx, http.MethodHead, origin)
	if err != nil {
		status, err = p.do(ctx, http.MethodGet, origin)
	}
	switch {
	case err != nil:
		return p.record(Result{Origin: origin, Status: Unavailable, Reason: err.Error()})
	case status != http.StatusOK:
		return p.record(Result{Origin: origin, Status: Unavailable, Reason: fmt.Sprintf("HTTP %d", status)})
	default:
		return p.record(Result{Origin: origin, Status: Available})
	}
}

// do returns the response status; the body is never read beyond the headers.
func (p *Prober) do(ctx context.Context, method, target string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%s timed out after %v", method, p.timeout)
		}
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.CopyN(io.Discard, resp.Body, 512)
	return resp.StatusCode, nil
}

func (p *Prober) record(r Result) Result {
	metrics.ProbeTotal.WithLabelValues(string(r.Status)).Inc()
	return r
}
