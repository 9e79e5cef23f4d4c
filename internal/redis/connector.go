package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/ytdown/internal/logger"
)

// ConnectOptions defines Redis connection retry behavior.
type ConnectOptions struct {
	Addr           string        // Redis address (ex: "localhost:6379")
	User           string        // Optional username
	Password       string        // Optional password
	RedisDB        int           // Redis DB number
	DialTimeout    time.Duration // Redis dial timeout
	ReadTimeout    time.Duration // Redis read timeout
	WriteTimeout   time.Duration // Redis write timeout
	PoolSize       int           // Redis connection pool size
	ConnectTimeout time.Duration // Total time allowed for connection attempts (ex: 30s)
	RetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	MaxWait        time.Duration // max wait between retries (ex: 10s)
	PingTimeout    time.Duration // timeout for each ping attempt (ex: 2s)
	WarnThreshold  int           // warn after this many attempts
}

// connectionLogger handles all Redis connection logging.
type connectionLogger struct {
	logger        logger.Logger
	addr          string
	warnThreshold int
	deadline      time.Time
	attempt       int
}

func (cl *connectionLogger) logConnectionStart(timeout time.Duration) {
	cl.logger.Info("connecting to redis",
		logger.String("addr", cl.addr),
		logger.Duration("timeout", timeout))
}

func (cl *connectionLogger) logSuccess(elapsed time.Duration) {
	if cl.attempt > 1 {
		cl.logger.Warn("connected to redis after retry",
			logger.String("addr", cl.addr),
			logger.Int("attempts", cl.attempt),
			logger.Duration("elapsed", elapsed))
	} else {
		cl.logger.Info("connected to redis",
			logger.String("addr", cl.addr))
	}
}

func (cl *connectionLogger) logTimeout(timeout time.Duration, err error) {
	cl.logger.Error("redis unavailable - failed to connect after timeout",
		logger.String("addr", cl.addr),
		logger.Int("attempts", cl.attempt),
		logger.Duration("timeout", timeout),
		logger.Error(err))
}

// logRetry is the backoff notify hook, called before each wait.
func (cl *connectionLogger) logRetry(err error, nextRetry time.Duration) {
	remaining := time.Until(cl.deadline)
	switch {
	case remaining < 10*time.Second:
		cl.logger.Error("redis still down - retrying but timeout approaching",
			logger.String("addr", cl.addr),
			logger.Int("attempt", cl.attempt),
			logger.Duration("remaining", remaining),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	case cl.attempt <= cl.warnThreshold:
		cl.logger.Warn("redis connection failed, retrying",
			logger.String("addr", cl.addr),
			logger.Int("attempt", cl.attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	default:
		cl.logger.Error("redis still unavailable - connection attempts failing",
			logger.String("addr", cl.addr),
			logger.Int("attempt", cl.attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	}
}

// validateOptions ensures all required configuration values are valid.
func validateOptions(opts ConnectOptions) error {
	if opts.Addr == "" {
		return fmt.Errorf("Addr must not be empty")
	}
	if opts.ConnectTimeout <= 0 {
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", opts.ConnectTimeout)
	}
	if opts.RetryInterval <= 0 {
		return fmt.Errorf("RetryInterval must be > 0, got %v", opts.RetryInterval)
	}
	if opts.MaxWait <= 0 {
		return fmt.Errorf("MaxWait must be > 0, got %v", opts.MaxWait)
	}
	if opts.PingTimeout <= 0 {
		return fmt.Errorf("PingTimeout must be > 0, got %v", opts.PingTimeout)
	}
	if opts.WarnThreshold < 0 {
		return fmt.Errorf("WarnThreshold must be >= 0, got %d", opts.WarnThreshold)
	}
	return nil
}

// New creates a Redis client and pings it until it answers, backing off
// exponentially between attempts. It gives up once ConnectTimeout is spent.
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if err := validateOptions(opts); err != nil {
		log.Error("invalid redis connect options", logger.Error(err))
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.RedisDB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	if err := connectWithRetry(ctx, client, opts, log); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// connectWithRetry pings until success or until the connect budget runs out.
func connectWithRetry(ctx context.Context, client *redis.Client, opts ConnectOptions, log logger.Logger) error {
	cl := &connectionLogger{
		logger:        log,
		addr:          opts.Addr,
		warnThreshold: opts.WarnThreshold,
		deadline:      time.Now().Add(opts.ConnectTimeout),
	}
	cl.logConnectionStart(opts.ConnectTimeout)

	ping := func() (struct{}, error) {
		cl.attempt++
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
		return struct{}{}, client.Ping(pingCtx).Err()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.RetryInterval
	bo.MaxInterval = opts.MaxWait
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.1

	start := time.Now()
	_, err := backoff.Retry(ctx, ping,
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(opts.ConnectTimeout),
		backoff.WithNotify(cl.logRetry))
	if err != nil {
		cl.logTimeout(opts.ConnectTimeout, err)
		return fmt.Errorf("redis unavailable at %s after %d attempts (timeout: %v): %w",
			opts.Addr, cl.attempt, opts.ConnectTimeout, err)
	}

	cl.logSuccess(time.Since(start))
	return nil
}
