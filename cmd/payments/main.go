package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nolet7/ecom-micro/internal/config"
	"github.com/nolet7/ecom-micro/internal/httpx"
	"github.com/nolet7/ecom-micro/internal/payments"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	defer db.Close()

	setupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := payments.NewStoreWithSchema(setupCtx, db)
	if err != nil {
		logger.Fatal("payments schema", zap.Error(err))
	}

	processor := &payments.Processor{
		Store:  store,
		Decide: payments.PolicyFromMode(cfg.PaymentsMode),
		Log:    logger,
	}
	logger.Info("payments decision policy", zap.String("mode", cfg.PaymentsMode))

	router := httpx.NewRouter()
	ph := &httpx.PaymentsHandler{Processor: processor, Log: logger}
	ph.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("payments HTTP listening", zap.String("addr", cfg.HTTPAddr))
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
}
