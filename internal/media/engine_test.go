package media

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultOptionsArgs(t *testing.T) {
	want := []string{
		"--network-caching=1000",
		"--clock-jitter=0",
		"--clock-synchro=0",
		"--ts-seek-percent",
	}
	if diff := cmp.Diff(want, DefaultOptions.Args()); diff != "" {
		t.Errorf("Args() mismatch (-want +got):\n%s", diff)
	}
}

func TestOptionsArgsWithoutSeek(t *testing.T) {
	o := Options{NetworkCaching: 2500 * time.Millisecond, ClockJitter: 5, ClockSynchro: true}
	want := []string{"--network-caching=2500", "--clock-jitter=5", "--clock-synchro=1"}
	if diff := cmp.Diff(want, o.Args()); diff != "" {
		t.Errorf("Args() mismatch (-want +got):\n%s", diff)
	}
}
