package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultInstances are the public instances the proxy was first deployed against.
const DefaultInstances = "https://cobalt-api.meowing.de,https://cobalt-backend.canine.tools,https://capi.3kh0.net"

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Upstream instances
	InstanceURLs     []string      // ordered base URLs, used when InstancesFile is empty
	InstancesFile    string        // optional path to instances.yaml (takes precedence over InstanceURLs)
	AttemptTimeout   time.Duration // ceiling for a single instance attempt (default: 15s)
	MaxResponseBytes int64         // max upstream body size read per attempt
	MaxRequestBytes  int64         // max inbound request body size

	// Supporting infrastructure
	CacheTTL           time.Duration // TTL of cached success payloads, 0 disables the cache
	StatsFlushInterval time.Duration // interval to persist instance stats to redis
	RateBurst          int           // per-IP burst on /api/download
	RatePerMin         int           // per-IP refill rate on /api/download
	CORSOrigins        []string      // Access-Control-Allow-Origin values ("*" allows any)

	// Redis (optional, empty RedisAddr disables it)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password when redis is enabled
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedHosts []string // optional, restrict /infra to specific Host headers
	AllowedCIDRS []string // optional, restrict /infra to specific IPs/CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("YTDOWN_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("YTDOWN_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("YTDOWN_LOG_LEVEL", "info"),
		PrettyLog: mustBool("YTDOWN_PRETTY_LOG", true),

		// Upstream instances
		InstanceURLs:     splitAndTrim(getenv("YTDOWN_INSTANCES", DefaultInstances)),
		InstancesFile:    getenv("YTDOWN_INSTANCES_FILE", ""),
		AttemptTimeout:   mustDuration("YTDOWN_ATTEMPT_TIMEOUT", 15*time.Second),
		MaxResponseBytes: int64(getenvInt("YTDOWN_MAX_RESPONSE_BYTES", 1<<20)),
		MaxRequestBytes:  int64(getenvInt("YTDOWN_MAX_REQUEST_BYTES", 64<<10)),

		// Supporting infrastructure
		CacheTTL:           mustDuration("YTDOWN_CACHE_TTL", 60*time.Second),
		StatsFlushInterval: mustDuration("YTDOWN_STATS_FLUSH_INTERVAL", time.Minute),
		RateBurst:          getenvInt("YTDOWN_RATE_BURST", 10),
		RatePerMin:         getenvInt("YTDOWN_RATE_PER_MIN", 30),
		CORSOrigins:        splitAndTrim(getenv("YTDOWN_CORS_ORIGINS", "*")),

		// Redis settings
		RedisAddr:             getenv("YTDOWN_REDIS_ADDR", ""),
		RedisUser:             getenv("YTDOWN_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("YTDOWN_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("YTDOWN_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("YTDOWN_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("YTDOWN_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("YTDOWN_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("YTDOWN_TRUST_PROXY", true),
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// Validate checks cross-field constraints that env parsing alone cannot.
func (c *Config) Validate() error {
	if c.InstancesFile == "" && len(c.InstanceURLs) == 0 {
		return fmt.Errorf("YTDOWN_INSTANCES or YTDOWN_INSTANCES_FILE must name at least one instance")
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("YTDOWN_ATTEMPT_TIMEOUT must be > 0, got %v", c.AttemptTimeout)
	}
	if c.MaxResponseBytes <= 0 {
		return fmt.Errorf("YTDOWN_MAX_RESPONSE_BYTES must be > 0, got %d", c.MaxResponseBytes)
	}
	if c.MaxRequestBytes <= 0 {
		return fmt.Errorf("YTDOWN_MAX_REQUEST_BYTES must be > 0, got %d", c.MaxRequestBytes)
	}
	if c.RedisEnabled() && c.RedisPasswordRequired && c.RedisPassword == "" {
		return fmt.Errorf("YTDOWN_REDIS_PASSWORD is required when YTDOWN_REDIS_PASSWORD_REQUIRED=true")
	}
	return nil
}

// RedisEnabled reports whether a Redis address was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
