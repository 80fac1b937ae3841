package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultClockStateTTL bounds how old a cached offset may be when restored.
const DefaultClockStateTTL = 24 * time.Hour

// Store handles Redis operations for play history, usage and clock state.
type Store struct {
	client      *redis.Client
	historySize int64
}

// NewStore creates a new Redis store keeping at most historySize play records.
func NewStore(client *redis.Client, historySize int) *Store {
	if historySize < 1 {
		historySize = 1
	}
	return &Store{
		client:      client,
		historySize: int64(historySize),
	}
}

// Ping checks the connection, used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
