package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nolet7/ecom-micro/internal/clients"
	"github.com/nolet7/ecom-micro/internal/config"
	kafkax "github.com/nolet7/ecom-micro/internal/kafka"
	"github.com/nolet7/ecom-micro/internal/orders"
	"github.com/nolet7/ecom-micro/internal/postgres"
	"github.com/nolet7/ecom-micro/internal/reconcile"
	"github.com/nolet7/ecom-micro/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	outbox, err := orders.NewRefundOutboxWithSchema(ctx, db)
	if err != nil {
		logger.Fatal("outbox schema", zap.Error(err))
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	rec := &reconcile.Reconciler{
		Outbox:   outbox,
		Payments: clients.NewPayments(cfg.PaymentsURL, cfg.ClientTimeout),
		Redis:    rdb,
		Retry: reconcile.RetryPolicy{
			MaxAttempts: 5,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		Log:         logger,
		ServiceName: cfg.ServiceName + "-reconciler",
		Interval:    getdur("SWEEP_INTERVAL", 30*time.Second),
		BatchSize:   getint("SWEEP_BATCH", 100),
	}

	go rec.Run(ctx)

	group := getenv("RECONCILER_GROUP", "refund-reconciler")
	workers := getint("RECONCILER_WORKERS", 4)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderCanceled, workers, logger)

	go func() {
		logger.Info("reconciler consumer started",
			zap.String("group", group),
			zap.String("topic", orders.TopicOrderCanceled),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, rec.HandleOrderCanceled); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down reconciler")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
