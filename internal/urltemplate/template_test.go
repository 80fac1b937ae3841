package urltemplate

import (
	"errors"
	"regexp"
	"testing"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/pool"
)

type fixedToken string

func (f fixedToken) Token() string { return string(f) }

func TestTemplatize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "hls with starttime",
			in:   "http://124.232.231.172:8089/000000002000/201500000063/1000.m3u8?starttime=20240102T030405.06Z",
			want: "http://{server}/000000002000/201500000063/1000.m3u8?starttime={timestamp}",
		},
		{
			name: "https without port",
			in:   "https://cdn.example.com/live.m3u8",
			want: "https://{server}/live.m3u8",
		},
		{
			name: "host only with query",
			in:   "http://a:1?starttime=20240102T030405.06Z&x=1",
			want: "http://{server}?starttime={timestamp}&x=1",
		},
		{
			name: "malformed starttime is kept",
			in:   "http://a:1/x?starttime=2024-01-02",
			want: "http://{server}/x?starttime=2024-01-02",
		},
		{
			name: "rtp is literal",
			in:   "rtp://239.76.253.151:9000",
			want: "rtp://239.76.253.151:9000",
		},
		{
			name: "surrounding whitespace",
			in:   "  http://h:2/p  ",
			want: "http://{server}/p",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Templatize(tt.in)
			if got != tt.want {
				t.Errorf("Templatize() = %q, want %q", got, tt.want)
			}
			if again := Templatize(got); again != got {
				t.Errorf("Templatize() not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestResolveWithoutPlaceholdersIsIdentity(t *testing.T) {
	for _, tpl := range []string{"rtp://239.76.253.151:9000", "http://fixed:80/a.m3u8", "udp://@239.0.0.1:1234"} {
		res, err := Resolve(tpl, pool.New(nil), fixedToken("unused"))
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tpl, err)
		}
		if res.URL != tpl {
			t.Errorf("Resolve(%q) = %q", tpl, res.URL)
		}
	}
}

func TestResolveScenario(t *testing.T) {
	const tpl = "http://{server}/x?starttime={timestamp}"
	want := regexp.MustCompile(`^http://(a:1|b:2)/x\?starttime=\d{8}T\d{6}\.\d{2}Z$`)
	p := pool.New([]string{"a:1", "b:2"})

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		res, err := Resolve(tpl, p, fixedToken("20240102T030405.06Z"))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !want.MatchString(res.URL) {
			t.Fatalf("Resolve() = %q", res.URL)
		}
		seen[res.Server] = true
	}
	if !seen["a:1"] || !seen["b:2"] {
		t.Errorf("expected both servers to be picked, got %v", seen)
	}
}

func TestResolveEmptyPoolStillSubstitutesTimestamp(t *testing.T) {
	res, err := Resolve("http://{server}/x?starttime={timestamp}", pool.New(nil), fixedToken("20240102T030405.06Z"))
	if !errors.Is(err, domain.ErrEmptyPool) {
		t.Fatalf("Resolve() error = %v, want ErrEmptyPool", err)
	}
	if want := "http://{server}/x?starttime=20240102T030405.06Z"; res.URL != want {
		t.Errorf("Resolve() = %q, want %q", res.URL, want)
	}
}

type brokenPicker struct{}

func (brokenPicker) Select() (string, error) { return "", errors.New("boom") }

func TestResolvePropagatesUnexpectedErrors(t *testing.T) {
	if _, err := Resolve("http://{server}/", brokenPicker{}, fixedToken("t")); err == nil || errors.Is(err, domain.ErrEmptyPool) {
		t.Errorf("Resolve() error = %v, want wrapped picker error", err)
	}
}
