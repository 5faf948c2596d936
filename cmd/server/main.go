package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lalith-99/convo/internal/api"
	"github.com/lalith-99/convo/internal/chat"
	"github.com/lalith-99/convo/internal/config"
	"github.com/lalith-99/convo/internal/db"
	"github.com/lalith-99/convo/internal/jobs"
	"github.com/lalith-99/convo/internal/middleware"
	"github.com/lalith-99/convo/internal/notify"
	"github.com/lalith-99/convo/internal/observ"
	"github.com/lalith-99/convo/internal/realtime"
	"github.com/lalith-99/convo/internal/repository"
	"github.com/lalith-99/convo/internal/repository/memory"
	"github.com/lalith-99/convo/internal/repository/postgres"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Cancelled on SIGINT/SIGTERM. Background loops stop with it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 2. Storage
	// ---------------------------------------------------------------
	store, health, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ---------------------------------------------------------------
	// 3. Realtime fan-out and guest rate limiting
	//
	// Without Redis every instance only reaches its own websocket
	// clients and guests are not rate limited.
	// ---------------------------------------------------------------
	hub := realtime.NewHub(logger)
	var (
		events  realtime.Publisher = hub
		limiter *middleware.RateLimiter
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}

		broadcaster := realtime.NewRedisBroadcaster(rdb, realtime.DefaultChannel, hub, logger)
		go func() {
			if err := broadcaster.Run(ctx); err != nil {
				logger.Error("realtime relay stopped", zap.Error(err))
			}
		}()
		events = broadcaster
		limiter = middleware.NewRateLimiter(middleware.NewRedisCounter(rdb), "convo:rl:guest", cfg.GuestRateLimit, cfg.GuestRateWindow, logger)
		logger.Info("redis connected", zap.String("addr", opts.Addr))
	}

	// ---------------------------------------------------------------
	// 4. Notifications
	// ---------------------------------------------------------------
	var notifier notify.Dispatcher = notify.NewLogDispatcher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kd := notify.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaNotifyTopic, logger)
		defer func() {
			if err := kd.Close(); err != nil {
				logger.Warn("close kafka writer", zap.Error(err))
			}
		}()
		notifier = kd
		logger.Info("kafka notifications enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaNotifyTopic),
		)
	}

	svc := chat.NewService(store, events, notifier, logger, chat.WithLimits(chat.Limits{
		MaxBodyChars:       cfg.MaxBodyChars,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
		EditWindow:         cfg.EditWindow,
	}))

	// ---------------------------------------------------------------
	// 5. Background jobs
	// ---------------------------------------------------------------
	scheduler := jobs.NewScheduler(logger, 30*time.Second)
	if err := scheduler.Add(jobs.ActiveGuestsJob, "@every 1m", jobs.ActiveGuests(store.Guests, nil)); err != nil {
		return err
	}
	scheduler.Start()

	// ---------------------------------------------------------------
	// 6. HTTP server
	// ---------------------------------------------------------------
	router := api.NewRouter(api.RouterConfig{
		Service:      svc,
		Store:        store,
		Hub:          hub,
		Logger:       logger,
		JWTSecret:    cfg.JWTSecret,
		TokenTTL:     cfg.TokenTTL,
		CORSOrigins:  cfg.CORSOrigins,
		GuestLimiter: limiter,
		Health:       health,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting convo",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// ---------------------------------------------------------------
	// 7. Graceful shutdown
	// ---------------------------------------------------------------
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
	logger.Info("convo stopped")
	return nil
}

// openStore picks the backend named by STORE_DRIVER. The returned health
// func backs /v1/health.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repository.Store, func(context.Context) error, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(nil), nil, func() {}, nil
	}

	if cfg.AutoMigrate {
		if err := db.MigrateUp(cfg.DatabaseURL, logger); err != nil {
			return nil, nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	database, err := db.New(ctx, cfg.DatabaseURL, db.PoolOptions{}, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return postgres.NewStore(database.Pool(), cfg.LockTimeout), database.Health, database.Close, nil
}
