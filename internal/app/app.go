package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/ytdown/internal/config"
	"github.com/MrSnakeDoc/ytdown/internal/dispatcher"
	"github.com/MrSnakeDoc/ytdown/internal/domain"
	"github.com/MrSnakeDoc/ytdown/internal/httpserver"
	"github.com/MrSnakeDoc/ytdown/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ytdown/internal/index"
	"github.com/MrSnakeDoc/ytdown/internal/logger"
	"github.com/MrSnakeDoc/ytdown/internal/redis"
	"github.com/MrSnakeDoc/ytdown/internal/scheduler"
	"github.com/MrSnakeDoc/ytdown/internal/sources/instances"
	redisstore "github.com/MrSnakeDoc/ytdown/internal/store/redis"
	"github.com/MrSnakeDoc/ytdown/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	flusher     *scheduler.StatsFlusher // nil when redis is disabled
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	list, err := loadInstances(cfg)
	if err != nil {
		loggerClient.Errorf("Failed to load upstream instances: %v", err)
		os.Exit(1)
	}
	for i, inst := range list {
		loggerClient.Info("upstream instance configured",
			logger.Int("position", i+1),
			logger.String("url", inst.URL),
			logger.String("name", inst.Name))
	}

	disp, err := dispatcher.New(list, dispatcher.Options{
		AttemptTimeout:   cfg.AttemptTimeout,
		MaxResponseBytes: cfg.MaxResponseBytes,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to build dispatcher: %v", err)
		os.Exit(1)
	}

	memIndex := index.NewMemoryIndex(list)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		TimeNow:         time.Now,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		Dispatcher:      disp,
		Stats:           memIndex,
		CacheTTL:        cfg.CacheTTL,
		MaxRequestBytes: cfg.MaxRequestBytes,
		CORSOrigins:     cfg.CORSOrigins,
		RateBurst:       cfg.RateBurst,
		RatePerMin:      cfg.RatePerMin,
		ProbeTimeout:    5 * time.Second,
	}

	a := &App{
		cfg:    cfg,
		logger: loggerClient,
	}

	// Redis is optional: downloads keep working without it.
	if cfg.RedisEnabled() {
		a.initRedis(memIndex, &d)
	} else {
		loggerClient.Info("redis not configured, result cache and stats persistence disabled")
	}

	a.server = httpserver.New(cfg, loggerClient, d)
	return a
}

// initRedis connects to Redis, restores persisted stats and wires the
// cache and flusher. On failure the app runs without them.
func (a *App) initRedis(memIndex *index.MemoryIndex, d *deps.Deps) {
	cfg := a.cfg

	redisClient, err := redis.New(context.Background(), redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, a.logger)
	if err != nil {
		a.logger.Warn("continuing without redis, result cache and stats persistence disabled",
			logger.Error(err))
		return
	}
	a.logger.Info("Redis initialized successfully")

	store := redisstore.NewStore(redisClient)

	syncer := scheduler.NewStatsSyncer(store, memIndex, a.logger)
	if err := syncer.Sync(context.Background()); err != nil {
		a.logger.Warn("failed to sync stats from redis on startup, starting from zero",
			logger.Error(err))
	}

	a.redisClient = redisClient
	a.flusher = scheduler.NewStatsFlusher(store, memIndex, a.logger, cfg.StatsFlushInterval)
	d.Cache = store
	d.CacheAdmin = store
	d.Redis = store
}

// loadInstances reads the instance list from the YAML file when configured,
// from the comma-separated URL list otherwise.
func loadInstances(cfg *config.Config) ([]domain.Instance, error) {
	if cfg.InstancesFile != "" {
		file, err := instances.NewLoader(cfg.InstancesFile).Load()
		if err != nil {
			return nil, err
		}
		return instances.Map(file)
	}
	return instances.FromURLs(cfg.InstanceURLs)
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting %s v%s on %s", version.Name, version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.flusher != nil {
		a.flusher.Start(ctx)
		a.logger.Info("stats flusher started",
			logger.Duration("interval", a.cfg.StatsFlushInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Flush after the server drained so in-flight dispatches are counted.
	if a.flusher != nil {
		a.flusher.Stop(shutdownCtx)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	_ = a.logger.Sync()
	a.logger.Infof("✅ %s stopped cleanly", version.Name)
	return nil
}
