// Command passgate-server serves the passgate HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/passgate"
	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/credential/pgstore"
	"github.com/MrEthical07/passgate/credential/redisstore"
	"github.com/MrEthical07/passgate/internal/appconfig"
	"github.com/MrEthical07/passgate/internal/bootstrap"
	"github.com/MrEthical07/passgate/internal/httpapi"
	"github.com/MrEthical07/passgate/internal/rate"
	"github.com/MrEthical07/passgate/metrics/export/prometheus"
	"github.com/MrEthical07/passgate/middleware"
	"github.com/MrEthical07/passgate/notify"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default config/config.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "passgate-server:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, rdb, closeStore, err := newStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	if engineCfg.TwoFactor.Bypass {
		logger.Warn("passgate: code delivery bypass is enabled; codes are returned in responses")
	}

	engine, err := passgate.New().
		WithConfig(engineCfg).
		WithStore(store).
		WithNotifier(notifier).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	defer engine.Close()

	if _, err := bootstrap.EnsureAdmin(ctx, store, engine, bootstrap.Admin{
		Email:    cfg.Admin.Email,
		Name:     cfg.Admin.Name,
		Password: cfg.Admin.Password,
		Role:     cfg.Admin.Role,
	}, logger); err != nil {
		return err
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger), rateLimit(cfg.Server, rdb, logger))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(prometheus.NewExporter(engine).Handler()))
	}
	httpapi.NewHandler(engine, logger).Register(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("passgate: listening", zap.String("addr", cfg.Server.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("passgate: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg appconfig.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// newStore opens the configured store. The Redis client is returned for
// the redis driver so the rate limiter can share it.
func newStore(ctx context.Context, cfg appconfig.StoreConfig) (credential.Store, redis.UniversalClient, func(), error) {
	switch cfg.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		store := redisstore.New(client, redisstore.Options{Prefix: cfg.RedisPrefix})
		return store, client, func() { _ = client.Close() }, nil

	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		store := pgstore.New(pool)
		if cfg.Migrate {
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return store, nil, pool.Close, nil

	default:
		return credential.NewMemoryStore(), nil, func() {}, nil
	}
}

// rateLimit counts in Redis when one is configured so every instance shares
// the budget, and in process otherwise.
func rateLimit(cfg appconfig.ServerConfig, rdb redis.UniversalClient, logger *zap.Logger) gin.HandlerFunc {
	if rdb == nil || cfg.RateLimit <= 0 {
		return middleware.NewRateLimiter(cfg.RateLimit).Handler()
	}
	return middleware.Throttle(rate.New(rdb, rate.Config{Limit: cfg.RateLimit, Window: time.Minute}), logger)
}

func newNotifier(cfg *appconfig.Config, logger *zap.Logger) (passgate.Notifier, error) {
	if cfg.SMTP.Host == "" {
		return notify.NewLog(logger, cfg.Log.Development), nil
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	mailer := notify.NewSMTP(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Location: loc,
	})
	return notify.NewDispatcher(mailer, notify.DispatcherOptions{
		BufferSize:  cfg.SMTP.QueueSize,
		DropIfFull:  cfg.SMTP.DropIfFull,
		SendTimeout: cfg.SMTP.SendTimeout,
		Logger:      logger,
	}), nil
}
