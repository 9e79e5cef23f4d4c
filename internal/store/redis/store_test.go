package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/ytdown/internal/domain"
)

func TestCacheKey(t *testing.T) {
	a := CacheKey([]byte(`{"url":"https://youtu.be/a"}`))
	b := CacheKey([]byte(`{"url":"https://youtu.be/a"}`))
	c := CacheKey([]byte(`{"downloadMode":"audio","url":"https://youtu.be/a"}`))

	if a != b {
		t.Errorf("CacheKey() not deterministic: %s != %s", a, b)
	}
	if a == c {
		t.Error("CacheKey() collides for different options")
	}
	if !strings.HasPrefix(a, KeyPrefixCache) {
		t.Errorf("CacheKey() = %s, want prefix %s", a, KeyPrefixCache)
	}
	if len(a) != len(KeyPrefixCache)+64 {
		t.Errorf("CacheKey() length = %d, want prefix + sha256 hex", len(a))
	}
}

// newTestStore connects to YTDOWN_TEST_REDIS_ADDR, or skips.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("YTDOWN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("YTDOWN_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	s := NewStore(client)
	if err := s.Ping(context.Background()); err != nil {
		t.Skipf("redis at %s unavailable: %v", addr, err)
	}
	return s
}

func TestCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	req := []byte(`{"url":"https://youtu.be/a"}`)

	got, err := s.GetCachedResult(ctx, req)
	if err != nil || got != nil {
		t.Fatalf("GetCachedResult() on empty cache = %s, %v, want miss", got, err)
	}

	body := []byte(`{"status":"tunnel","url":"https://media.example/a"}`)
	if err := s.CacheResult(ctx, req, body, time.Minute); err != nil {
		t.Fatalf("CacheResult() error = %v", err)
	}
	got, err = s.GetCachedResult(ctx, req)
	if err != nil || string(got) != string(body) {
		t.Errorf("GetCachedResult() = %s, %v, want cached body", got, err)
	}

	removed, err := s.InvalidateResult(ctx, req)
	if err != nil || !removed {
		t.Fatalf("InvalidateResult() = %v, %v, want true", removed, err)
	}
	if got, _ := s.GetCachedResult(ctx, req); got != nil {
		t.Errorf("GetCachedResult() after invalidate = %s, want miss", got)
	}
	if removed, _ := s.InvalidateResult(ctx, req); removed {
		t.Error("InvalidateResult() on a miss reported a removal")
	}
}

func TestFlushCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const entries = 250
	for i := range entries {
		req := []byte(fmt.Sprintf(`{"url":"https://youtu.be/%d"}`, i))
		if err := s.CacheResult(ctx, req, []byte(`{"status":"tunnel"}`), time.Minute); err != nil {
			t.Fatalf("CacheResult() error = %v", err)
		}
	}
	if err := s.SaveStats(ctx, []domain.InstanceStats{{Instance: "https://a.example", Successes: 1}}, domain.DispatchTotals{Success: 1}); err != nil {
		t.Fatalf("SaveStats() error = %v", err)
	}

	removed, err := s.FlushCache(ctx)
	if err != nil {
		t.Fatalf("FlushCache() error = %v", err)
	}
	if removed != entries {
		t.Errorf("FlushCache() removed %d, want %d", removed, entries)
	}
	if got, _ := s.GetCachedResult(ctx, []byte(`{"url":"https://youtu.be/7"}`)); got != nil {
		t.Errorf("GetCachedResult() after flush = %s, want miss", got)
	}

	stats, _, err := s.LoadStats(ctx)
	if err != nil || len(stats) != 1 {
		t.Errorf("LoadStats() after flush = %v, %v, want stats untouched", stats, err)
	}
}

func TestStatsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, totals, err := s.LoadStats(ctx)
	if err != nil || len(stats) != 0 || totals != (domain.DispatchTotals{}) {
		t.Fatalf("LoadStats() on empty db = %v, %+v, %v", stats, totals, err)
	}

	in := []domain.InstanceStats{
		{Instance: "https://a.example", Successes: 3, Failures: 1, LastStatus: 200},
		{Instance: "https://b.example", Terminals: 2},
	}
	if err := s.SaveStats(ctx, in, domain.DispatchTotals{Success: 3, Terminal: 2}); err != nil {
		t.Fatalf("SaveStats() error = %v", err)
	}

	stats, totals, err = s.LoadStats(ctx)
	if err != nil {
		t.Fatalf("LoadStats() error = %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("LoadStats() = %d entries, want 2", len(stats))
	}
	if totals.Success != 3 || totals.Terminal != 2 {
		t.Errorf("totals = %+v", totals)
	}
}
