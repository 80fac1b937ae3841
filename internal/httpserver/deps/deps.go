package deps

import (
	"context"
	"time"

	"github.com/dlcy/iptv-hunan/internal/clock"
	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/library"
	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/notify"
	"github.com/dlcy/iptv-hunan/internal/player"
	"github.com/dlcy/iptv-hunan/internal/surface"
)

// ClockSync is the manual side of the background clock worker.
type ClockSync interface {
	Trigger() bool
	SyncAndWait(ctx context.Context) (domain.ClockState, error)
}

// History is the optional Redis-backed play history.
type History interface {
	History(ctx context.Context, limit int) ([]domain.PlayRecord, error)
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time // for testing, defaults to time.Now
	AllowedHosts []string         // Host headers allowed to access the server
	AllowedCIDRS []string         // client IPs/CIDRs allowed to access the API
	TrustProxy   bool             // true if running behind a trusted local reverse proxy

	RateLimitBurst  int
	RateLimitPerMin int

	Player    *player.Controller
	Library   *library.Library
	Clock     *clock.Service
	ClockSync ClockSync
	Surfaces  map[domain.SurfaceKind]*surface.Window
	Notifier  *notify.Hub
	History   History // nil when Redis is disabled
	StateFile string

	ReloadTrigger chan struct{} // Channel to trigger a manual state file reload
}

// Now returns TimeNow() or time.Now() when unset.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
