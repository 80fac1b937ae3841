package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dlcy/iptv-hunan/internal/catalog"
	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
	"github.com/dlcy/iptv-hunan/internal/logger"
)

const defaultFindLimit = 10

type channelEntry struct {
	Index int `json:"index"`
	domain.Channel
}

type addChannelRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type importChannelsResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

type resolveResponse struct {
	Channel string `json:"channel"`
	URL     string `json:"url"`
	Server  string `json:"server,omitempty"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// Channels lists the catalog in display order.
func Channels(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := d.Library.Catalog().All()
		out := make([]channelEntry, len(all))
		for i, ch := range all {
			out[i] = channelEntry{Index: i, Channel: ch}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// AddChannel stores a user-entered channel. The URL is templatized.
func AddChannel(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addChannelRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		ch, err := d.Library.AddChannel(req.Name, req.URL)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, channelEntry{Index: d.Library.Catalog().Count() - 1, Channel: ch})
	}
}

// FindChannels ranks channels by name against ?q=.
func FindChannels(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			writeError(w, fmt.Errorf("%w: query parameter q is required", domain.ErrInvalidInput))
			return
		}
		limit := defaultFindLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput))
				return
			}
			limit = n
		}

		matches := d.Library.Catalog().Find(q, limit)
		if matches == nil {
			matches = []catalog.Match{}
		}
		d.Logger.Debug("channel find", logger.String("query", q), logger.Int("matches", len(matches)))
		writeJSON(w, http.StatusOK, matches)
	}
}

// ResolveChannel resolves a channel's template once without playing it.
func ResolveChannel(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		ch, err := d.Library.Catalog().Get(name)
		if err != nil {
			writeError(w, err)
			return
		}

		res, err := d.Library.Resolve(ch.Template)
		out := resolveResponse{Channel: ch.Name, URL: res.URL, Server: res.Server, Token: res.Token}
		if err != nil {
			if !errors.Is(err, domain.ErrEmptyPool) {
				writeError(w, err)
				return
			}
			out.Error, out.Kind = err.Error(), domain.Kind(err)
			writeJSON(w, statusFor(err), out)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ImportChannels appends the tab-separated channel list in the request body.
func ImportChannels(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imp, err := d.Library.ImportChannels(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, importChannelsResponse{
			Imported: len(imp.Channels),
			Skipped:  imp.Skipped,
			Total:    d.Library.Catalog().Count(),
		})
	}
}

// ImportServers replaces the server pool with the list in the request body.
func ImportServers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		servers, err := d.Library.ImportServers(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, servers)
	}
}

func Servers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		servers := d.Library.Servers()
		if servers == nil {
			servers = []string{}
		}
		writeJSON(w, http.StatusOK, servers)
	}
}
