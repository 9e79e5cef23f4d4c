package scheduler

import (
	"context"

	"github.com/MrSnakeDoc/ytdown/internal/domain"
	"github.com/MrSnakeDoc/ytdown/internal/index"
	"github.com/MrSnakeDoc/ytdown/internal/logger"
)

// StatsLoader reads persisted statistics. *redisstore.Store satisfies it.
type StatsLoader interface {
	LoadStats(ctx context.Context) ([]domain.InstanceStats, domain.DispatchTotals, error)
}

// StatsSyncer restores persisted statistics into the memory index on startup
type StatsSyncer struct {
	store  StatsLoader
	index  *index.MemoryIndex
	logger logger.Logger
}

// NewStatsSyncer creates a new stats syncer
func NewStatsSyncer(store StatsLoader, idx *index.MemoryIndex, log logger.Logger) *StatsSyncer {
	return &StatsSyncer{
		store:  store,
		index:  idx,
		logger: log,
	}
}

// Sync loads statistics from the store and merges them into the index
func (ss *StatsSyncer) Sync(ctx context.Context) error {
	ss.logger.Info("syncing instance stats from redis to memory")

	stats, totals, err := ss.store.LoadStats(ctx)
	if err != nil {
		return err
	}

	if len(stats) == 0 && totals == (domain.DispatchTotals{}) {
		ss.logger.Info("no instance stats found in redis")
		return nil
	}

	restored := ss.index.Restore(stats, totals)

	ss.logger.Info("synced instance stats from redis",
		logger.Int("restored", restored),
		logger.Int("stale", len(stats)-restored))

	return nil
}
