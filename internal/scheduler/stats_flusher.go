package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/ytdown/internal/domain"
	"github.com/MrSnakeDoc/ytdown/internal/index"
	"github.com/MrSnakeDoc/ytdown/internal/logger"
)

// DefaultFlushInterval is used when no interval is configured.
const DefaultFlushInterval = time.Minute

// StatsSaver persists statistics. *redisstore.Store satisfies it.
type StatsSaver interface {
	SaveStats(ctx context.Context, stats []domain.InstanceStats, totals domain.DispatchTotals) error
}

// StatsFlusher periodically writes the memory index to the store
type StatsFlusher struct {
	store    StatsSaver
	index    *index.MemoryIndex
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewStatsFlusher creates a new stats flusher
func NewStatsFlusher(
	store StatsSaver,
	idx *index.MemoryIndex,
	log logger.Logger,
	interval time.Duration,
) *StatsFlusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	return &StatsFlusher{
		store:    store,
		index:    idx,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the periodic flush
func (sf *StatsFlusher) Start(ctx context.Context) {
	ticker := time.NewTicker(sf.interval)
	go func() {
		defer close(sf.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sf.Flush(ctx); err != nil {
					sf.logger.Error("stats flush failed",
						logger.Error(err))
				}
			case <-sf.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the periodic flush and writes the counters one last time.
// Safe to call more than once.
func (sf *StatsFlusher) Stop(ctx context.Context) {
	sf.stopOnce.Do(func() {
		close(sf.stopCh)
		<-sf.done

		if err := sf.Flush(ctx); err != nil {
			sf.logger.Warn("final stats flush failed",
				logger.Error(err))
		}
	})
}

// Flush writes the counters if they changed since the last flush
func (sf *StatsFlusher) Flush(ctx context.Context) error {
	stats, totals, ok := sf.index.Checkpoint()
	if !ok {
		sf.logger.Debug("no stats changes to flush")
		return nil
	}

	if err := sf.store.SaveStats(ctx, stats, totals); err != nil {
		sf.index.MarkDirty()
		return err
	}

	sf.logger.Debug("flushed instance stats",
		logger.Int("instances", len(stats)))
	return nil
}
