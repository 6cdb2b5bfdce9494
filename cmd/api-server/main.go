package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/clinova/scheduler/internal/api"
	"github.com/clinova/scheduler/internal/booking"
	"github.com/clinova/scheduler/internal/config"
	"github.com/clinova/scheduler/internal/db"
	"github.com/clinova/scheduler/internal/logger"
	"github.com/clinova/scheduler/internal/notify"
	"github.com/clinova/scheduler/internal/observability"
	"github.com/clinova/scheduler/internal/payment"
	redisclient "github.com/clinova/scheduler/internal/redis"
)

const version = "0.3.0"

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

	zlog.Info("api-server starting up",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version))

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

	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(zlog)
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			zlog.Fatal("rabbitmq connection error", zap.Error(err))
		}
		defer conn.Close()

		amqpDispatcher, err := notify.NewAMQPDispatcher(conn, cfg.NotifyQueue, zlog)
		if err != nil {
			zlog.Fatal("rabbitmq dispatcher error", zap.Error(err))
		}
		defer amqpDispatcher.Close()
		dispatcher = amqpDispatcher
		zlog.Info("connected to RabbitMQ", zap.String("queue", cfg.NotifyQueue))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := observability.New(registry)

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewProviderLocker(rdb, cfg.LockTTL, cfg.LockWait)
	engine := booking.NewEngine(repo, locker, dispatcher, metrics, zlog)

	gateway := payment.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, zlog)
	reconciler := payment.NewReconciler(repo, gateway, metrics, zlog)

	router := api.NewRouter(api.RouterConfig{
		Bookings: engine,
		Payments: reconciler,
		PgPool:   pgPool,
		Redis:    rdb,
		Registry: registry,
		Logger:   zlog,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}

	zlog.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("shutdown error", zap.Error(err))
	}
}
