package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dlcy/iptv-hunan/internal/domain"
)

// SaveClockState caches the last successful sync so the offset survives
// restarts. Failed syncs are not cached.
func (s *Store) SaveClockState(ctx context.Context, st domain.ClockState) error {
	if !st.Status.OK {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal clock state: %w", err)
	}
	if err := s.client.Set(ctx, KeyClockState, data, DefaultClockStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache clock state: %w", err)
	}
	return nil
}

// GetClockState returns the cached clock state; ok is false on a cache miss.
func (s *Store) GetClockState(ctx context.Context) (st domain.ClockState, ok bool, err error) {
	data, err := s.client.Get(ctx, KeyClockState).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ClockState{}, false, nil // Cache miss
		}
		return domain.ClockState{}, false, fmt.Errorf("failed to get clock state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.ClockState{}, false, fmt.Errorf("failed to unmarshal clock state: %w", err)
	}
	return st, true, nil
}
