package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dlcy/iptv-hunan/internal/catalog"
	"github.com/dlcy/iptv-hunan/internal/clock"
	"github.com/dlcy/iptv-hunan/internal/config"
	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/httpserver"
	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
	"github.com/dlcy/iptv-hunan/internal/library"
	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/media"
	"github.com/dlcy/iptv-hunan/internal/media/vlc"
	"github.com/dlcy/iptv-hunan/internal/notify"
	"github.com/dlcy/iptv-hunan/internal/player"
	"github.com/dlcy/iptv-hunan/internal/pool"
	"github.com/dlcy/iptv-hunan/internal/probe"
	"github.com/dlcy/iptv-hunan/internal/redis"
	"github.com/dlcy/iptv-hunan/internal/scheduler"
	redisstore "github.com/dlcy/iptv-hunan/internal/store/redis"
	"github.com/dlcy/iptv-hunan/internal/store/state"
	"github.com/dlcy/iptv-hunan/internal/surface"
	"github.com/dlcy/iptv-hunan/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	player      *player.Controller
	clockSync   *scheduler.ClockSyncer
	reloader    *scheduler.StateReloader
}

// New wires every component from cfg. Redis is optional; a missing media
// engine is not.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loggerClient := logger.New(logger.Options{
		Level:          cfg.LogLevel,
		Pretty:         cfg.PrettyLog,
		File:           cfg.LogFile,
		FileMaxSizeMB:  cfg.LogFileMaxSizeMB,
		FileMaxBackups: cfg.LogFileMaxBackups,
		FileMaxAgeDays: cfg.LogFileMaxAgeDays,
	})

	// Persisted record set. A corrupt file keeps the defaults in memory and
	// disables writes so it is never overwritten.
	stateStore := state.NewStore(cfg.StateFile, loggerClient.Named("state"))
	st, err := stateStore.Load()
	switch {
	case errors.Is(err, domain.ErrStateReadOnly):
		loggerClient.Warn("state file unreadable, running with defaults and without saving",
			logger.String("path", cfg.StateFile), logger.Error(err))
	case err != nil:
		loggerClient.Warn("state file could not be written", logger.Error(err))
	}

	hub := notify.NewHub(loggerClient.Named("notify"))
	servers := pool.New(st.Servers)
	clk := clock.NewService(clock.NTPQuerier{Timeout: cfg.ClockSyncTimeout}, st.Clock, loggerClient.Named("clock"))
	cat := catalog.New(st.Channels)
	lib := library.New(cat, servers, clk, stateStore, hub, loggerClient.Named("library"))
	if err != nil {
		hub.Failure("load", "state file", err)
	}

	// Optional Redis: play history, usage ranking and clock warm start.
	var (
		redisClient *goredis.Client
		rstore      *redisstore.Store
	)
	if cfg.RedisEnabled() {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		redisClient, err = redis.Connect(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
		}, loggerClient.Named("redis"))
		if err != nil {
			loggerClient.Warn("redis unavailable, history disabled", logger.Error(err))
			redisClient = nil
		} else {
			rstore = redisstore.NewStore(redisClient, cfg.HistorySize)
			syncer := scheduler.NewRedisSyncer(rstore, cat, clk, loggerClient.Named("redis-sync"))
			if err := syncer.Sync(context.Background()); err != nil {
				loggerClient.Warn("warm start from redis failed", logger.Error(err))
			}
		}
	} else {
		loggerClient.Info("redis not configured, history disabled")
	}

	engine := vlc.New(cfg.VLCPath, cfg.VLCRuntimeDir, loggerClient.Named("vlc"))
	if err := engine.Check(); err != nil {
		return nil, fmt.Errorf("media engine unavailable: %w", err)
	}

	surfaces := map[domain.SurfaceKind]*surface.Window{
		domain.SurfacePrimary:    newSurface(domain.SurfacePrimary, cfg.PrimaryWindowID),
		domain.SurfaceFullscreen: newSurface(domain.SurfaceFullscreen, cfg.FullscreenWindowID),
	}

	opts := player.Options{
		Policy:               cfg.HandoffPolicy,
		Media:                media.DefaultOptions,
		PlayConfirmTimeout:   cfg.PlayConfirmTimeout,
		SurfaceSettleTimeout: cfg.SurfaceSettleTimeout,
		SeekSettleTimeout:    cfg.SeekSettleTimeout,
		ShutdownTimeout:      cfg.ShutdownTimeout,
		OnPlayed: func(rec domain.PlayRecord) {
			if rec.Result == "ok" {
				cat.IncrementUsage(rec.Channel)
			}
			if rstore == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.RedisPingTimeout)
			defer cancel()
			if err := rstore.RecordPlay(ctx, rec); err != nil {
				loggerClient.Warn("failed to record play", logger.Error(err))
			}
		},
	}
	ctrl := player.New(player.Deps{
		Engine:   engine,
		Resolve:  lib.Resolve,
		Prober:   probe.New(cfg.ProbeTimeout),
		Notifier: hub,
		Primary:  surfaces[domain.SurfacePrimary],
		Full:     surfaces[domain.SurfaceFullscreen],
		Log:      loggerClient,
	}, opts)

	// Interface fields stay nil, not typed-nil, when Redis is off.
	var (
		clockCache scheduler.ClockCache
		history    deps.History
	)
	if rstore != nil {
		clockCache = rstore
		history = rstore
	}
	clockSync := scheduler.NewClockSyncer(clk, ctrl, clockCache, loggerClient.Named("clock-sync"),
		cfg.ClockSyncInterval, cfg.ClockSyncTimeout)

	reloadTrigger := make(chan struct{}, 1)
	reloader := scheduler.NewStateReloader(stateStore, lib.Apply, hub, loggerClient.Named("state-reload"),
		cfg.WatchState, reloadTrigger)

	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		TimeNow:         time.Now,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		RateLimitBurst:  cfg.RateLimitBurst,
		RateLimitPerMin: cfg.RateLimitRefillPerMin,
		Player:          ctrl,
		Library:         lib,
		Clock:           clk,
		ClockSync:       clockSync,
		Surfaces:        surfaces,
		Notifier:        hub,
		History:         history,
		StateFile:       cfg.StateFile,
		ReloadTrigger:   reloadTrigger,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg.ListenAddr, loggerClient, d),
		redisClient: redisClient,
		player:      ctrl,
		clockSync:   clockSync,
		reloader:    reloader,
	}, nil
}

func newSurface(kind domain.SurfaceKind, windowID string) *surface.Window {
	if windowID == "" {
		return surface.New(kind)
	}
	return surface.NewRealized(kind, windowID)
}

// Run blocks until SIGINT/SIGTERM or until a component fails.
func (a *App) Run() error {
	a.logger.Infof("🚀 Starting iptvd v%s on %s", version.Version, a.cfg.ListenAddr)
	a.logger.Infof("iptvd %s", version.String())
	defer func() { _ = a.logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.reloader.Start(ctx); err != nil {
		return fmt.Errorf("failed to start state reloader: %w", err)
	}
	a.logger.Info("state reloader started", logger.Bool("watch", a.cfg.WatchState))

	if err := a.clockSync.Start(ctx); err != nil {
		return fmt.Errorf("failed to start clock sync: %w", err)
	}
	a.logger.Info("clock sync started", logger.Duration("interval", a.cfg.ClockSyncInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.player.Run(gctx)
	})
	g.Go(func() error {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("⏳ Shutting down gracefully...")

		a.reloader.Stop()
		a.clockSync.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
		return nil
	})

	err := g.Wait()

	if a.redisClient != nil {
		if cerr := a.redisClient.Close(); cerr != nil {
			a.logger.Warnf("failed to close redis: %v", cerr)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}
	if err != nil {
		return err
	}

	a.logger.Info("✅ iptvd stopped cleanly")
	return nil
}
