package library

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dlcy/iptv-hunan/internal/catalog"
	"github.com/dlcy/iptv-hunan/internal/clock"
	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/pool"
	"github.com/dlcy/iptv-hunan/internal/store/state"
)

type recNotifier struct {
	mu    sync.Mutex
	lines []string
}

func (n *recNotifier) Status(op, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lines = append(n.lines, op+": "+msg)
}

func (n *recNotifier) Failure(op, msg string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lines = append(n.lines, "FAIL "+op+" ["+domain.Kind(err)+"]: "+msg)
}

func (n *recNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.lines) == 0 {
		return ""
	}
	return n.lines[len(n.lines)-1]
}

type failingStore struct{ err error }

func (f failingStore) Save(state.State) error { return f.err }

func newLibrary(t *testing.T, store Persister) (*Library, *recNotifier) {
	t.Helper()
	def := state.Defaults()
	n := &recNotifier{}
	lib := New(
		catalog.New(def.Channels),
		pool.New(def.Servers),
		clock.NewService(nil, def.Clock, logger.Nop()),
		store,
		n,
		logger.Nop(),
	)
	return lib, n
}

func newFileStore(t *testing.T) *state.Store {
	t.Helper()
	st := state.NewStore(filepath.Join(t.TempDir(), "state.yaml"), logger.Nop())
	if _, err := st.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return st
}

func TestImportChannelsAppendsAndPersists(t *testing.T) {
	store := newFileStore(t)
	lib, n := newLibrary(t, store)

	input := "name\turl\n" +
		"CCTV5\thttp://10.0.0.1:8080/ch5/index.m3u8?starttime=20240101T000000.00Z\n" +
		"broken line\n" +
		"\n" +
		"RTP\trtp://239.1.1.1:5000\n"

	imp, err := lib.ImportChannels(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ImportChannels() error = %v", err)
	}
	if imp.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", imp.Skipped)
	}
	if got := lib.Catalog().Count(); got != 5 {
		t.Fatalf("Count() = %d, want 5", got)
	}
	ch, err := lib.Catalog().Get("CCTV5")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if want := "http://{server}/ch5/index.m3u8?starttime={timestamp}"; ch.Template != want {
		t.Errorf("Template = %q, want %q", ch.Template, want)
	}
	if got, want := n.last(), "import: imported 2 channels, skipped 1 malformed lines"; got != want {
		t.Errorf("status = %q, want %q", got, want)
	}

	reread := state.NewStore(store.Path(), logger.Nop())
	st, err := reread.Load()
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if diff := cmp.Diff(lib.Catalog().All(), st.Channels); diff != "" {
		t.Errorf("persisted channels mismatch (-memory +file):\n%s", diff)
	}
}

func TestImportChannelsMalformedChangesNothing(t *testing.T) {
	lib, n := newLibrary(t, nil)
	before := lib.Catalog().All()

	_, err := lib.ImportChannels(strings.NewReader("header only\nno tab here\n"))
	if !errors.Is(err, domain.ErrMalformedImport) {
		t.Fatalf("error = %v, want ErrMalformedImport", err)
	}
	if diff := cmp.Diff(before, lib.Catalog().All()); diff != "" {
		t.Errorf("catalog changed (-before +after):\n%s", diff)
	}
	if !strings.HasPrefix(n.last(), "FAIL import [MalformedImport]") {
		t.Errorf("status = %q", n.last())
	}
}

func TestImportServersReplaces(t *testing.T) {
	lib, _ := newLibrary(t, nil)

	got, err := lib.ImportServers(strings.NewReader("10.0.0.1:80\n\n 10.0.0.2:81 \n"))
	if err != nil {
		t.Fatalf("ImportServers() error = %v", err)
	}
	want := []string{"10.0.0.1:80", "10.0.0.2:81"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("servers mismatch (-want +got):\n%s", diff)
	}

	_, err = lib.ImportServers(strings.NewReader("\n  \n"))
	if !errors.Is(err, domain.ErrMalformedImport) {
		t.Fatalf("error = %v, want ErrMalformedImport", err)
	}
	if diff := cmp.Diff(want, lib.Servers()); diff != "" {
		t.Errorf("pool changed after failed import:\n%s", diff)
	}
}

func TestAddChannel(t *testing.T) {
	lib, _ := newLibrary(t, nil)

	ch, err := lib.AddChannel(" 测试 ", "HTTP://1.2.3.4:99/live.m3u8?starttime=20230101T101010.00Z&x=1")
	if err != nil {
		t.Fatalf("AddChannel() error = %v", err)
	}
	want := domain.Channel{Name: "测试", Template: "HTTP://{server}/live.m3u8?starttime={timestamp}&x=1"}
	if diff := cmp.Diff(want, ch); diff != "" {
		t.Errorf("channel mismatch (-want +got):\n%s", diff)
	}

	if _, err := lib.AddChannel("", "http://x"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty name error = %v, want ErrInvalidInput", err)
	}
}

func TestClockSources(t *testing.T) {
	lib, _ := newLibrary(t, nil)

	src, err := lib.SetClockSource("time.example.org")
	if err != nil {
		t.Fatalf("SetClockSource() error = %v", err)
	}
	if src.CurrentSource != "time.example.org" {
		t.Errorf("CurrentSource = %q", src.CurrentSource)
	}

	src, err = lib.AddClockSources([]string{"a.example.org", "", "time.example.org"})
	if err != nil {
		t.Fatalf("AddClockSources() error = %v", err)
	}
	if src.CurrentSource != "time.example.org" {
		t.Errorf("adding sources changed the current one to %q", src.CurrentSource)
	}
	want := append(state.Defaults().Clock.KnownSources, "time.example.org", "a.example.org")
	if diff := cmp.Diff(want, src.KnownSources); diff != "" {
		t.Errorf("known sources mismatch (-want +got):\n%s", diff)
	}

	if _, err := lib.AddClockSources([]string{" "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("blank sources error = %v, want ErrInvalidInput", err)
	}
}

func TestReadOnlyStoreKeepsMemoryChange(t *testing.T) {
	lib, n := newLibrary(t, failingStore{err: domain.ErrStateReadOnly})

	if _, err := lib.AddChannel("X", "rtp://1.1.1.1:1"); err != nil {
		t.Fatalf("AddChannel() error = %v", err)
	}
	if _, err := lib.Catalog().Get("X"); err != nil {
		t.Errorf("channel missing from memory: %v", err)
	}

	var sawReadOnly bool
	for _, l := range n.lines {
		if strings.HasPrefix(l, "FAIL save [StateReadOnly]") {
			sawReadOnly = true
		}
	}
	if !sawReadOnly {
		t.Errorf("read-only save not reported: %v", n.lines)
	}
}

func TestResolveUsesPoolAndClock(t *testing.T) {
	lib, _ := newLibrary(t, nil)

	res, err := lib.Resolve("http://{server}/a.m3u8?starttime={timestamp}")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Server != "124.232.231.172:8089" && res.Server != "218.76.205.6:6410" {
		t.Errorf("Server = %q, not from the pool", res.Server)
	}
	if len(res.Token) != len(clock.TokenLayout) {
		t.Errorf("Token = %q", res.Token)
	}
}

func TestApply(t *testing.T) {
	lib, _ := newLibrary(t, nil)

	next := state.State{
		Channels: []domain.Channel{{Name: "only", Template: "rtp://1.1.1.1:1"}},
		Servers:  []string{"9.9.9.9:9"},
		Clock:    domain.ClockSources{KnownSources: []string{"ntp.example.org"}},
	}
	lib.Apply(next)

	got := lib.Snapshot()
	next.Clock.CurrentSource = "ntp.example.org"
	if diff := cmp.Diff(next, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}
