package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/grafov/m3u8"
)

// PlaylistInfo summarizes an HLS playlist for diagnostics.
type PlaylistInfo struct {
	Master         bool    `json:"master"`
	Variants       int     `json:"variants,omitempty"`
	Segments       int     `json:"segments,omitempty"`
	TargetDuration float64 `json:"target_duration,omitempty"`
	Live           bool    `json:"live"`
}

// IsPlaylistURL reports whether rawURL looks like an HLS playlist.
func IsPlaylistURL(rawURL string) bool {
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(strings.ToLower(path), ".m3u8")
}

// InspectPlaylist fetches and decodes the playlist behind a resolved URL.
// Upstream playlists often bend the HLS rules, so decoding is not strict.
func (p *Prober) InspectPlaylist(ctx context.Context, playlistURL string) (*PlaylistInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build playlist request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch playlist: HTTP %d", resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, false)
	if err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}

	if listType == m3u8.MASTER {
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("unexpected playlist type")
		}
		return &PlaylistInfo{Master: true, Variants: len(master.Variants), Live: true}, nil
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type")
	}
	info := &PlaylistInfo{TargetDuration: media.TargetDuration, Live: !media.Closed}
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		info.Segments++
	}
	if info.Segments == 0 {
		return info, fmt.Errorf("playlist contains no segments")
	}
	return info, nil
}
