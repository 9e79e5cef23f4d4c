package index

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/ytdown/internal/domain"
)

// MemoryIndex keeps per-instance attempt statistics and dispatch totals.
// It is the source of truth at runtime; Redis only persists snapshots of it.
type MemoryIndex struct {
	mu       sync.RWMutex
	order    []string                         // failover order, for stable output
	stats    map[string]*domain.InstanceStats // instance URL -> stats
	totals   domain.DispatchTotals
	dirty    bool
	lastSync time.Time // last time counters were restored or flushed
	now      func() time.Time
}

// NewMemoryIndex creates an index with zeroed counters for every instance.
func NewMemoryIndex(instances []domain.Instance) *MemoryIndex {
	idx := &MemoryIndex{
		order: make([]string, 0, len(instances)),
		stats: make(map[string]*domain.InstanceStats, len(instances)),
		now:   time.Now,
	}
	for _, inst := range instances {
		if _, ok := idx.stats[inst.URL]; ok {
			continue
		}
		idx.order = append(idx.order, inst.URL)
		idx.stats[inst.URL] = &domain.InstanceStats{Instance: inst.URL}
	}
	return idx
}

// RecordResult folds a finished dispatch into the counters.
// Attempts against unknown instances are ignored.
func (idx *MemoryIndex) RecordResult(res domain.Result) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	at := idx.now()
	for _, a := range res.Attempts {
		if s, ok := idx.stats[a.Instance]; ok {
			s.Apply(a, at)
		}
	}

	switch res.Kind {
	case domain.ResultSuccess:
		idx.totals.Success++
	case domain.ResultTerminal:
		idx.totals.Terminal++
	case domain.ResultExhausted:
		idx.totals.Exhausted++
	case domain.ResultRejected:
		idx.totals.Rejected++
	}
	idx.dirty = true
}

// IncrementCacheHits counts a request served from the result cache.
func (idx *MemoryIndex) IncrementCacheHits() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.totals.CacheHits++
	idx.dirty = true
}

// Get returns a copy of one instance's stats.
func (idx *MemoryIndex) Get(instance string) (domain.InstanceStats, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s, ok := idx.stats[instance]
	if !ok {
		return domain.InstanceStats{}, false
	}
	return *s, true
}

// Snapshot returns a copy of every instance's stats, in failover order.
func (idx *MemoryIndex) Snapshot() []domain.InstanceStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]domain.InstanceStats, 0, len(idx.order))
	for _, url := range idx.order {
		out = append(out, *idx.stats[url])
	}
	return out
}

// Totals returns the dispatch totals.
func (idx *MemoryIndex) Totals() domain.DispatchTotals {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.totals
}

// Restore adds persisted counters on top of the in-memory ones.
// Stats for instances that are no longer configured are dropped.
func (idx *MemoryIndex) Restore(stats []domain.InstanceStats, totals domain.DispatchTotals) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	restored := 0
	for _, in := range stats {
		s, ok := idx.stats[in.Instance]
		if !ok {
			continue
		}
		s.Successes += in.Successes
		s.Terminals += in.Terminals
		s.Failures += in.Failures
		if in.LastSeen.After(s.LastSeen) {
			s.LastStatus = in.LastStatus
			s.LastLatency = in.LastLatency
			s.LastError = in.LastError
			s.LastSeen = in.LastSeen
		}
		restored++
	}

	idx.totals.Success += totals.Success
	idx.totals.Terminal += totals.Terminal
	idx.totals.Exhausted += totals.Exhausted
	idx.totals.Rejected += totals.Rejected
	idx.totals.CacheHits += totals.CacheHits
	idx.lastSync = idx.now()

	return restored
}

// Checkpoint returns a snapshot for persistence and clears the dirty flag.
// ok is false when nothing changed since the previous checkpoint.
func (idx *MemoryIndex) Checkpoint() (stats []domain.InstanceStats, totals domain.DispatchTotals, ok bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.dirty {
		return nil, domain.DispatchTotals{}, false
	}

	stats = make([]domain.InstanceStats, 0, len(idx.order))
	for _, url := range idx.order {
		stats = append(stats, *idx.stats[url])
	}
	idx.dirty = false
	idx.lastSync = idx.now()
	return stats, idx.totals, true
}

// MarkDirty flags the counters for the next checkpoint, after a failed flush.
func (idx *MemoryIndex) MarkDirty() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.dirty = true
}

// GetLastSync returns the timestamp of the last restore or flush.
func (idx *MemoryIndex) GetLastSync() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastSync
}
