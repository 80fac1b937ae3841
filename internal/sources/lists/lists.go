// Package lists parses the plain-text channel and server lists users import.
package lists

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/urltemplate"
)

const maxLineBytes = 1 << 20

// ChannelImport is the outcome of parsing a channel list.
type ChannelImport struct {
	Channels []domain.Channel
	Skipped  int // data lines without a usable "<name>\t<url>" pair
}

// ParseChannels reads a tab-separated channel list. The first line is a
// header and is always skipped; blank lines are ignored and lines without a
// tab are counted as skipped. Every URL is templatized.
//
// A list with no valid line returns domain.ErrMalformedImport.
func ParseChannels(r io.Reader) (ChannelImport, error) {
	var out ChannelImport

	sc := newScanner(r)
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		name, rawURL, ok := strings.Cut(line, "\t")
		name, rawURL = strings.TrimSpace(name), strings.TrimSpace(rawURL)
		if !ok || name == "" || rawURL == "" {
			out.Skipped++
			continue
		}
		out.Channels = append(out.Channels, domain.Channel{
			Name:     name,
			Template: urltemplate.Templatize(rawURL),
		})
	}
	if err := sc.Err(); err != nil {
		return ChannelImport{}, fmt.Errorf("failed to read channel list: %w", err)
	}

	if len(out.Channels) == 0 {
		return out, fmt.Errorf("%w: no \"<name>\\t<url>\" lines found (%d skipped)", domain.ErrMalformedImport, out.Skipped)
	}
	return out, nil
}

// ParseServers reads one host:port per line, ignoring blank lines.
// A list with no entries returns domain.ErrMalformedImport.
func ParseServers(r io.Reader) ([]string, error) {
	var servers []string

	sc := newScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			servers = append(servers, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read server list: %w", err)
	}

	if len(servers) == 0 {
		return nil, fmt.Errorf("%w: server list is empty", domain.ErrMalformedImport)
	}
	return servers, nil
}

// LoadChannelsFile parses a channel list from disk.
func LoadChannelsFile(path string) (ChannelImport, error) {
	f, err := os.Open(path)
	if err != nil {
		return ChannelImport{}, fmt.Errorf("failed to open channel list: %w", err)
	}
	defer f.Close()
	return ParseChannels(f)
}

// LoadServersFile parses a server list from disk.
func LoadServersFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server list: %w", err)
	}
	defer f.Close()
	return ParseServers(f)
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return sc
}
