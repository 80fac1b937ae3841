package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dlcy/iptv-hunan/internal/domain"
)

func TestOrigin(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://a:1/x/y.m3u8?starttime=1", want: "http://a:1"},
		{in: "HTTPS://Host.example/p", want: "https://Host.example"},
		{in: "rtp://239.76.253.151:9000", wantErr: true},
		{in: "http:///nohost", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Origin(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Origin() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("Origin() error = %v, want ErrInvalidInput", err)
			}
			if got != tt.want {
				t.Errorf("Origin() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProbeHeadOK(t *testing.T) {
	var paths atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths.Store(r.Method + " " + r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(time.Second).Probe(context.Background(), srv.URL+"/000000002000/1000.m3u8?starttime=x")
	if r.Status != Available || r.Err() != nil {
		t.Fatalf("Probe() = %+v", r)
	}
	if got := paths.Load(); got != "HEAD /" {
		t.Errorf("request = %v, want HEAD on origin root", got)
	}
}

func TestProbeNon200IsUnavailableWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := New(time.Second).Probe(context.Background(), srv.URL)
	if r.Status != Unavailable || r.Reason != "HTTP 403" {
		t.Fatalf("Probe() = %+v", r)
	}
	if !errors.Is(r.Err(), domain.ErrNetworkUnavailable) {
		t.Errorf("Err() = %v, want ErrNetworkUnavailable", r.Err())
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

type headFails struct {
	next http.RoundTripper
}

func (h headFails) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodHead {
		return nil, fmt.Errorf("connection reset by peer")
	}
	return h.next.RoundTrip(req)
}

func TestProbeFallsBackToGet(t *testing.T) {
	var method atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		_, _ = w.Write([]byte("portal"))
	}))
	defer srv.Close()

	p := New(time.Second).WithClient(&http.Client{Transport: headFails{next: http.DefaultTransport}})
	r := p.Probe(context.Background(), srv.URL+"/live.m3u8")
	if r.Status != Available {
		t.Fatalf("Probe() = %+v", r)
	}
	if method.Load() != http.MethodGet {
		t.Errorf("fallback method = %v, want GET", method.Load())
	}
}

func TestProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	r := New(50*time.Millisecond).Probe(context.Background(), srv.URL)
	if r.Status != Unavailable {
		t.Fatalf("Probe() = %+v", r)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("probe took %v, expected it bounded by the timeout", elapsed)
	}
}

func TestProbeUnsupportedScheme(t *testing.T) {
	r := New(time.Second).Probe(context.Background(), "rtp://239.76.253.151:9000")
	if r.Status != Unavailable {
		t.Fatalf("Probe() = %+v", r)
	}
}

func TestInspectPlaylist(t *testing.T) {
	const media = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:1\n#EXTINF:6.000,\nseg1.ts\n#EXTINF:6.000,\nseg2.ts\n"
	const master = "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1280000\nlow.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2560000\nhigh.m3u8\n"

	mux := http.NewServeMux()
	mux.HandleFunc("/media.m3u8", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(media)) })
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(master)) })
	mux.HandleFunc("/garbage.m3u8", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New(time.Second)

	info, err := p.InspectPlaylist(context.Background(), srv.URL+"/media.m3u8")
	if err != nil {
		t.Fatalf("media: %v", err)
	}
	if info.Master || info.Segments != 2 || info.TargetDuration != 6 || !info.Live {
		t.Errorf("media info = %+v", info)
	}

	info, err = p.InspectPlaylist(context.Background(), srv.URL+"/master.m3u8")
	if err != nil {
		t.Fatalf("master: %v", err)
	}
	if !info.Master || info.Variants != 2 {
		t.Errorf("master info = %+v", info)
	}

	if _, err := p.InspectPlaylist(context.Background(), srv.URL+"/garbage.m3u8"); err == nil {
		t.Error("expected parse error for non-playlist body")
	}
	if _, err := p.InspectPlaylist(context.Background(), srv.URL+"/missing.m3u8"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestIsPlaylistURL(t *testing.T) {
	cases := map[string]bool{
		"http://a/1000.m3u8?starttime=x": true,
		"http://a/1000.M3U8":             true,
		"http://a/seg.ts":                false,
		"rtp://239.76.253.151:9000":      false,
	}
	for in, want := range cases {
		if got := IsPlaylistURL(in); got != want {
			t.Errorf("IsPlaylistURL(%q) = %v, want %v", in, got, want)
		}
	}
}
