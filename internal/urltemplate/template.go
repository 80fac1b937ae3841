// Package urltemplate converts concrete stream URLs to channel templates and
// resolves templates back to playable URLs.
package urltemplate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dlcy/iptv-hunan/internal/domain"
)

var (
	originRE    = regexp.MustCompile(`^(?i)(https?)://[^/?#]+`)
	starttimeRE = regexp.MustCompile(`starttime=\d{8}T\d{6}\.\d{2}Z`)
)

// ServerPicker picks the origin substituted for {server}.
type ServerPicker interface {
	Select() (string, error)
}

// TokenSource produces the corrected-time token substituted for {timestamp}.
type TokenSource interface {
	Token() string
}

// Templatize replaces the scheme://host[:port] of an http(s) URL with
// {server} and a starttime=<token> query value with starttime={timestamp}.
// Other schemes (rtp://, udp://) are kept literal. Applying it to a template
// returns the template unchanged.
func Templatize(concrete string) string {
	out := strings.TrimSpace(concrete)
	out = originRE.ReplaceAllString(out, "${1}://"+domain.PlaceholderServer)
	out = starttimeRE.ReplaceAllString(out, "starttime="+domain.PlaceholderTimestamp)
	return out
}

// HasPlaceholders reports whether t needs resolution at all.
func HasPlaceholders(t string) bool {
	return strings.Contains(t, domain.PlaceholderServer) || strings.Contains(t, domain.PlaceholderTimestamp)
}

// Resolution is the outcome of resolving one template.
type Resolution struct {
	URL    string
	Server string // empty when the template has no {server}
	Token  string // empty when the template has no {timestamp}
}

// Resolve substitutes a freshly picked server and the current time token.
//
// If {server} cannot be filled because the pool is empty, the remaining
// placeholders are still substituted for display and the returned error wraps
// domain.ErrEmptyPool. The result must never be cached: the token is only
// valid for the attempt that requested it.
func Resolve(template string, servers ServerPicker, tokens TokenSource) (Resolution, error) {
	res := Resolution{URL: template}
	var resolveErr error

	if strings.Contains(res.URL, domain.PlaceholderServer) {
		server, err := servers.Select()
		switch {
		case err == nil:
			res.Server = server
			res.URL = strings.ReplaceAll(res.URL, domain.PlaceholderServer, server)
		case errors.Is(err, domain.ErrEmptyPool):
			resolveErr = err
		default:
			return res, fmt.Errorf("select server: %w", err)
		}
	}

	if strings.Contains(res.URL, domain.PlaceholderTimestamp) {
		res.Token = tokens.Token()
		res.URL = strings.ReplaceAll(res.URL, domain.PlaceholderTimestamp, res.Token)
	}

	return res, resolveErr
}
