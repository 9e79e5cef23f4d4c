package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/ytdown/internal/dispatcher"
	"github.com/MrSnakeDoc/ytdown/internal/index"
	"github.com/MrSnakeDoc/ytdown/internal/logger"
)

// ResultCache stores successful upstream bodies keyed by canonical request bytes.
// *redisstore.Store satisfies it.
type ResultCache interface {
	GetCachedResult(ctx context.Context, canonical []byte) ([]byte, error)
	CacheResult(ctx context.Context, canonical, body []byte, ttl time.Duration) error
}

// CacheAdmin drops cached results on operator request.
type CacheAdmin interface {
	InvalidateResult(ctx context.Context, canonical []byte) (bool, error)
	FlushCache(ctx context.Context) (int64, error)
}

// Pinger reports backend connectivity for /infra.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	TimeNow         func() time.Time       // for testing, defaults to time.Now
	AllowedHosts    []string               // Host headers allowed to access /infra
	AllowedCIDRS    []string               // IPs allowed to access /readyz and /infra
	TrustProxy      bool                   // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Dispatcher      *dispatcher.Dispatcher // failover dispatcher over the configured instances
	Stats           *index.MemoryIndex     // per-instance attempt statistics
	Cache           ResultCache            // nil when redis is disabled
	CacheAdmin      CacheAdmin             // nil when redis is disabled
	Redis           Pinger                 // nil when redis is disabled
	CacheTTL        time.Duration          // 0 disables the result cache
	MaxRequestBytes int64                  // cap on /api/download request bodies
	CORSOrigins     []string               // allowed origins on /api/download
	RateBurst       int                    // per-IP burst on /api/download
	RatePerMin      int                    // per-IP refill on /api/download
	ProbeTimeout    time.Duration          // per-instance timeout for /infra?probe=1
}

// CacheEnabled reports whether the result cache should be used.
func (d Deps) CacheEnabled() bool {
	return d.Cache != nil && d.CacheTTL > 0
}
