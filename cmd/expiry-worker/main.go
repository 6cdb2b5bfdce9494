package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinova/scheduler/internal/booking"
	"github.com/clinova/scheduler/internal/config"
	"github.com/clinova/scheduler/internal/db"
	"github.com/clinova/scheduler/internal/logger"
	redisclient "github.com/clinova/scheduler/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if cfg.HoldTTL <= 0 {
		zlog.Fatal("HOLD_TTL must be positive for the expiry worker")
	}

	zlog.Info("expiry-worker starting up",
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("hold_ttl", cfg.HoldTTL))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		zlog.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zlog.Info("connected to Postgres")

	rdb, err := redisclient.NewClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		zlog.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			zlog.Warn("error closing redis", zap.Error(err))
		}
	}()
	zlog.Info("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewProviderLocker(rdb, cfg.LockTTL, cfg.LockWait)
	engine := booking.NewEngine(repo, locker, nil, nil, zlog)
	engine.SetHoldTTL(cfg.HoldTTL)

	// Run once at startup
	runOnce(rootCtx, engine, zlog)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			zlog.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, engine, zlog)
		}
	}
}

func runOnce(ctx context.Context, engine *booking.Engine, zlog *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := engine.ExpireStaleHolds(runCtx); err != nil {
		zlog.Error("expiry run error", zap.Error(err))
		return
	}
	zlog.Info("expiry run complete", zap.Duration("took", time.Since(start)))
}
