package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/ytdown/internal/domain"
)

// SaveStats replaces the persisted statistics with the given snapshot
// in a single transaction.
func (s *Store) SaveStats(ctx context.Context, stats []domain.InstanceStats, totals domain.DispatchTotals) error {
	fields := make(map[string]any, len(stats))
	for _, st := range stats {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to marshal stats for %s: %w", st.Instance, err)
		}
		fields[st.Instance] = data
	}

	totalsData, err := json.Marshal(totals)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch totals: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, InstanceStatsKey())
	if len(fields) > 0 {
		pipe.HSet(ctx, InstanceStatsKey(), fields)
	}
	pipe.Set(ctx, DispatchTotalsKey(), totalsData, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// LoadStats retrieves the persisted statistics. Missing keys yield empty values.
// Entries that cannot be decoded are skipped.
func (s *Store) LoadStats(ctx context.Context) ([]domain.InstanceStats, domain.DispatchTotals, error) {
	var totals domain.DispatchTotals

	raw, err := s.client.HGetAll(ctx, InstanceStatsKey()).Result()
	if err != nil {
		return nil, totals, fmt.Errorf("failed to get instance stats: %w", err)
	}

	stats := make([]domain.InstanceStats, 0, len(raw))
	for instance, data := range raw {
		var st domain.InstanceStats
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			continue
		}
		st.Instance = instance
		stats = append(stats, st)
	}

	data, err := s.client.Get(ctx, DispatchTotalsKey()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return stats, totals, nil
	case err != nil:
		return nil, totals, fmt.Errorf("failed to get dispatch totals: %w", err)
	}
	if err := json.Unmarshal(data, &totals); err != nil {
		return nil, totals, fmt.Errorf("failed to unmarshal dispatch totals: %w", err)
	}

	return stats, totals, nil
}
