package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dlcy/iptv-hunan/internal/domain"
)

// RecordPlay prepends a play record, trims the history and, for successful
// plays, bumps the channel's usage counter in one round trip.
func (s *Store) RecordPlay(ctx context.Context, rec domain.PlayRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal play record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, KeyHistory, data)
	pipe.LTrim(ctx, KeyHistory, 0, s.historySize-1)
	if rec.Result == "ok" {
		pipe.HIncrBy(ctx, KeyUsage, rec.Channel, 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return nil
}

// History returns up to limit play records, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]domain.PlayRecord, error) {
	if limit <= 0 || int64(limit) > s.historySize {
		limit = int(s.historySize)
	}
	raw, err := s.client.LRange(ctx, KeyHistory, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	records := make([]domain.PlayRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.PlayRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue // Skip malformed entries
		}
		records = append(records, rec)
	}
	return records, nil
}
