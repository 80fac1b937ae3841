package scheduler

import (
	"context"

	"github.com/dlcy/iptv-hunan/internal/catalog"
	"github.com/dlcy/iptv-hunan/internal/clock"
	"github.com/dlcy/iptv-hunan/internal/logger"
	redisstore "github.com/dlcy/iptv-hunan/internal/store/redis"
)

// RedisSyncer seeds in-memory state from Redis on startup: the last good
// clock offset and the per-channel play counters.
type RedisSyncer struct {
	store   *redisstore.Store
	catalog *catalog.Catalog
	clock   *clock.Service
	logger  logger.Logger
}

// NewRedisSyncer creates a new Redis syncer
func NewRedisSyncer(
	store *redisstore.Store,
	cat *catalog.Catalog,
	clk *clock.Service,
	log logger.Logger,
) *RedisSyncer {
	return &RedisSyncer{
		store:   store,
		catalog: cat,
		clock:   clk,
		logger:  log,
	}
}

// Sync restores what Redis has. A miss is not an error.
func (rs *RedisSyncer) Sync(ctx context.Context) error {
	rs.logger.Info("warm start from redis")

	st, ok, err := rs.store.GetClockState(ctx)
	if err != nil {
		return err
	}
	if !ok {
		rs.logger.Info("no cached clock state in redis")
	} else if !rs.clock.Restore(st) {
		rs.logger.Debug("cached clock state ignored")
	}

	usage, err := rs.store.GetUsageStats(ctx)
	if err != nil {
		return err
	}
	if len(usage) > 0 {
		rs.catalog.SetUsage(usage)
		rs.logger.Info("restored channel usage from redis", logger.Int("channels", len(usage)))
	}
	return nil
}
