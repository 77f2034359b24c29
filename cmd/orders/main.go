package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nolet7/ecom-micro/internal/clients"
	"github.com/nolet7/ecom-micro/internal/config"
	"github.com/nolet7/ecom-micro/internal/httpx"
	kafkax "github.com/nolet7/ecom-micro/internal/kafka"
	"github.com/nolet7/ecom-micro/internal/orders"
	"github.com/nolet7/ecom-micro/internal/postgres"
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

	repo, err := orders.NewRepoWithSchema(ctx, db)
	if err != nil {
		logger.Fatal("orders schema", zap.Error(err))
	}
	outbox, err := orders.NewRefundOutboxWithSchema(ctx, db)
	if err != nil {
		logger.Fatal("outbox schema", zap.Error(err))
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pConfirmed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderConfirmed, 1024, logger)
	pConfirmed.Start(ctx)
	pCanceled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCanceled, 1024, logger)
	pCanceled.Start(ctx)

	events := &orders.Events{
		Confirmed: pConfirmed,
		Canceled:  pCanceled,
		Service:   cfg.ServiceName + "-orders",
	}

	saga := orders.NewSaga(
		repo,
		clients.NewPricing(cfg.CatalogURL, cfg.ClientTimeout),
		clients.NewPayments(cfg.PaymentsURL, cfg.ClientTimeout),
		clients.NewInventory(cfg.InventoryURL, cfg.ClientTimeout),
		outbox,
		events,
		logger,
	)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Saga: saga, Repo: repo, Redis: rdb, Log: logger}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("orders HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pConfirmed.Close()
	pCanceled.Close()
	cancel()
	pConfirmed.WaitClosed()
	pCanceled.WaitClosed()
}
