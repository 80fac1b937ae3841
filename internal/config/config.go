package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dlcy/iptv-hunan/internal/domain"
)

type Config struct {
	ListenAddr      string        // ex: "127.0.0.1:8089"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel          string // "debug" | "info" | "warn" | "error"
	PrettyLog         bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile           string // optional rotated log file
	LogFileMaxSizeMB  int
	LogFileMaxBackups int
	LogFileMaxAgeDays int

	StateFile  string // persisted channels, servers and clock sources (YAML)
	WatchState bool   // reload the state file when it is edited externally

	ClockSyncInterval time.Duration // background clock sync period (default: 10m)
	ClockSyncTimeout  time.Duration // per-query NTP timeout (default: 3s)
	ProbeTimeout      time.Duration // server probe timeout per attempt (default: 3s)

	PlayConfirmTimeout    time.Duration        // how long Loading may wait for the engine to report playing
	SurfaceSettleTimeout  time.Duration        // wait for a target surface to be realized
	SeekSettleTimeout     time.Duration        // wait for playback before restoring position
	HandoffPolicy         domain.HandoffPolicy // "preserve" | "reresolve"
	VLCPath               string               // VLC binary
	VLCRuntimeDir         string               // directory for RC sockets
	PrimaryWindowID       string               // native window handle of the primary view
	FullscreenWindowID    string               // native window handle of the fullscreen view
	HistorySize           int                  // number of play records kept in Redis
	RateLimitBurst        int
	RateLimitRefillPerMin int

	// Redis (optional, empty address disables history and clock warm start)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisConnectTimeout time.Duration
	RedisRetryInterval  time.Duration
	RedisMaxWait        time.Duration
	RedisPingTimeout    time.Duration

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IPs/CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For headers
}

func Load() *Config {
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] failed to load .env: %v", err)
	}

	cfg := &Config{
		ListenAddr:      getenv("IPTV_LISTEN_ADDR", "127.0.0.1:8089"),
		ShutdownTimeout: mustDuration("IPTV_SHUTDOWN_TIMEOUT", 5*time.Second),

		LogLevel:          getenv("LOG_LEVEL", "info"),
		PrettyLog:         mustBool("LOG_PRETTY", true),
		LogFile:           getenv("LOG_FILE", ""),
		LogFileMaxSizeMB:  getenvInt("LOG_FILE_MAX_SIZE_MB", 10),
		LogFileMaxBackups: getenvInt("LOG_FILE_MAX_BACKUPS", 3),
		LogFileMaxAgeDays: getenvInt("LOG_FILE_MAX_AGE_DAYS", 14),

		StateFile:  getenv("IPTV_STATE_FILE", "./iptv-state.yaml"),
		WatchState: mustBool("IPTV_WATCH_STATE", true),

		ClockSyncInterval: mustDuration("IPTV_CLOCK_SYNC_INTERVAL", 10*time.Minute),
		ClockSyncTimeout:  mustDuration("IPTV_CLOCK_SYNC_TIMEOUT", 3*time.Second),
		ProbeTimeout:      mustDuration("IPTV_PROBE_TIMEOUT", 3*time.Second),

		PlayConfirmTimeout:    mustDuration("IPTV_PLAY_CONFIRM_TIMEOUT", 10*time.Second),
		SurfaceSettleTimeout:  mustDuration("IPTV_SURFACE_SETTLE_TIMEOUT", 500*time.Millisecond),
		SeekSettleTimeout:     mustDuration("IPTV_SEEK_SETTLE_TIMEOUT", 2*time.Second),
		HandoffPolicy:         domain.HandoffPolicy(strings.ToLower(getenv("IPTV_HANDOFF_POLICY", string(domain.HandoffPreserve)))),
		VLCPath:               getenv("IPTV_VLC_PATH", "vlc"),
		VLCRuntimeDir:         getenv("IPTV_VLC_RUNTIME_DIR", os.TempDir()),
		PrimaryWindowID:       getenv("IPTV_PRIMARY_WINDOW_ID", ""),
		FullscreenWindowID:    getenv("IPTV_FULLSCREEN_WINDOW_ID", ""),
		HistorySize:           getenvInt("IPTV_HISTORY_SIZE", 100),
		RateLimitBurst:        getenvInt("IPTV_RATE_LIMIT_BURST", 20),
		RateLimitRefillPerMin: getenvInt("IPTV_RATE_LIMIT_PER_MIN", 120),

		RedisAddr:           getenv("IPTV_REDIS_ADDR", ""),
		RedisUser:           getenv("IPTV_REDIS_USERNAME", ""),
		RedisPassword:       getenv("IPTV_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("IPTV_REDIS_DB", 0),
		RedisConnectTimeout: mustDuration("IPTV_REDIS_CONNECT_TIMEOUT", 10*time.Second),
		RedisRetryInterval:  mustDuration("IPTV_REDIS_RETRY_INTERVAL", 500*time.Millisecond),
		RedisMaxWait:        mustDuration("IPTV_REDIS_MAX_WAIT", 4*time.Second),
		RedisPingTimeout:    mustDuration("IPTV_REDIS_PING_TIMEOUT", 2*time.Second),

		AllowedHosts: splitAndTrim(getenv("IPTV_ALLOWED_HOSTS", "")),
		AllowedCIDRS: splitAndTrim(getenv("IPTV_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("IPTV_TRUST_PROXY", false),
	}

	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// Validate rejects values the controller cannot run with.
func (c *Config) Validate() error {
	switch c.HandoffPolicy {
	case domain.HandoffPreserve, domain.HandoffReresolve:
	default:
		return fmt.Errorf("IPTV_HANDOFF_POLICY must be %q or %q, got %q",
			domain.HandoffPreserve, domain.HandoffReresolve, c.HandoffPolicy)
	}

	timeouts := map[string]time.Duration{
		"IPTV_CLOCK_SYNC_INTERVAL":    c.ClockSyncInterval,
		"IPTV_CLOCK_SYNC_TIMEOUT":     c.ClockSyncTimeout,
		"IPTV_PROBE_TIMEOUT":          c.ProbeTimeout,
		"IPTV_PLAY_CONFIRM_TIMEOUT":   c.PlayConfirmTimeout,
		"IPTV_SURFACE_SETTLE_TIMEOUT": c.SurfaceSettleTimeout,
		"IPTV_SEEK_SETTLE_TIMEOUT":    c.SeekSettleTimeout,
	}
	for key, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0, got %v", key, d)
		}
	}

	if c.StateFile == "" {
		return fmt.Errorf("IPTV_STATE_FILE must not be empty")
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("IPTV_HISTORY_SIZE must be >= 1, got %d", c.HistorySize)
	}
	return nil
}

// RedisEnabled reports whether an optional Redis backend is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
