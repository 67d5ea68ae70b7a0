package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nmalhotra/orderflow/internal/config"
	invapp "github.com/nmalhotra/orderflow/internal/inventory/application"
	orderapp "github.com/nmalhotra/orderflow/internal/order/application"
	orderhttp "github.com/nmalhotra/orderflow/internal/order/infrastructure/http"
	orderkafka "github.com/nmalhotra/orderflow/internal/order/infrastructure/kafka"
	orderpg "github.com/nmalhotra/orderflow/internal/order/infrastructure/postgres"
	"github.com/nmalhotra/orderflow/internal/payment/infrastructure/gateway"
	reportapp "github.com/nmalhotra/orderflow/internal/reporting/application"
	reporthttp "github.com/nmalhotra/orderflow/internal/reporting/infrastructure/httpapi"
	reportpg "github.com/nmalhotra/orderflow/internal/reporting/infrastructure/postgres"
	reportredis "github.com/nmalhotra/orderflow/internal/reporting/infrastructure/redis"
	"github.com/nmalhotra/orderflow/pkg/clock"
	"github.com/nmalhotra/orderflow/pkg/logging"
	"github.com/nmalhotra/orderflow/pkg/outbox"
	"github.com/nmalhotra/orderflow/pkg/shutdown"
	"github.com/nmalhotra/orderflow/pkg/tracing"
)

func main() {
	log := logging.New(slog.LevelInfo)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg := config.Load()

	tp, err := tracing.Init(ctx, "orderflow", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := orderpg.NewPool(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	writer := orderkafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()

	// Placement core
	uow := orderpg.NewUnitOfWork(log, pool)
	reader := orderpg.NewReader(log, pool)
	pay := gateway.New(log, cfg.PaymentURL, cfg.PaymentTimeout)
	inventory := invapp.NewManager(log)
	placer := orderapp.NewPlacer(log, uow, pay, inventory)
	handler := orderhttp.NewHandler(log, placer, reader)

	// Outbox relay
	store := orderpg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
	relay := outbox.NewRelay(log, store, dispatch, "orderflow-relay")

	// Revenue reporting
	pipeline := reportapp.NewPipeline(
		log,
		clock.System(),
		reportpg.NewRevenueReader(log, pool),
		reporthttp.NewClient(cfg.ReportURL, cfg.ConfirmURL, cfg.ReportTimeout),
		reportredis.NewCache(rdb),
		reportredis.NewPeriodLedger(rdb),
		cfg.ReportInterval,
		cfg.RevenueCacheTTL,
	)

	r := chi.NewRouter()
	r.Mount("/", handler.Routes())
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()
	go func() {
		if err := pipeline.Run(ctx); err != nil {
			log.Error("reporting pipeline stopped with error", "err", err)
		}
	}()
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("orderflow shutdown complete")
}
