package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/woo-erp-sync/internal/config"
	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	kafkax "github.com/ariefcatur/woo-erp-sync/internal/kafka"
	"github.com/ariefcatur/woo-erp-sync/internal/logx"
	"github.com/ariefcatur/woo-erp-sync/internal/postgres"
	"github.com/ariefcatur/woo-erp-sync/internal/reconcile"
	"github.com/ariefcatur/woo-erp-sync/internal/redisx"
	"github.com/ariefcatur/woo-erp-sync/internal/scheduler"
	"github.com/ariefcatur/woo-erp-sync/internal/woo"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logx.New(cfg.LogLevel, cfg.LogFormat).With(zap.String("service", cfg.ServiceName+"-syncer"))
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: cfg.PostgresMax})
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	store := &erp.Repo{DB: db}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producers: run.completed & order.imported
	completed := kafkax.NewProducer(cfg.KafkaBrokers, erp.TopicRunCompleted, 1024, log)
	completed.Start(ctx)
	imported := kafkax.NewProducer(cfg.KafkaBrokers, erp.TopicOrderImported, 1024, log)
	imported.Start(ctx)

	svc := &reconcile.Service{
		Store: store,
		Woo: woo.NewClient(woo.Timeouts{
			List:    cfg.Woo.ListTimeout,
			Lookup:  cfg.Woo.LookupTimeout,
			Booking: cfg.Woo.BookingTimeout,
			Order:   cfg.Woo.OrderTimeout,
		}),
		Cache:        redisx.Cache{RDB: rdb},
		RunEvents:    completed,
		OrderEvents:  imported,
		Log:          log.Named("reconcile"),
		ServiceName:  cfg.ServiceName + "-syncer",
		LookbackDays: cfg.Sync.LookbackDays,
	}

	// Scheduled trigger
	flows := make([]reconcile.Flow, 0, len(cfg.Sync.Flows))
	for _, s := range cfg.Sync.Flows {
		f, err := reconcile.ParseFlow(s)
		if err != nil {
			log.Fatal("SYNC_FLOWS", zap.Error(err))
		}
		flows = append(flows, f)
	}
	trigger := scheduler.NewCronTrigger(scheduler.Config{Interval: cfg.Sync.Interval, Flows: flows}, svc, store, log.Named("scheduler"))
	if err := trigger.Start(ctx); err != nil {
		log.Fatal("start scheduler", zap.Error(err))
	}

	// Consumer: run requests from the API
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Syncer.Group, erp.TopicRunRequested, cfg.Syncer.Workers, log)
	go func() {
		log.Info("syncer consumer started",
			zap.String("group", cfg.Syncer.Group),
			zap.String("topic", erp.TopicRunRequested),
			zap.Int("workers", cfg.Syncer.Workers),
		)
		if err := cons.Start(ctx, svc.HandleRunRequested); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down syncer...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := trigger.Stop(stopCtx); err != nil {
		log.Warn("scheduler stop", zap.Error(err))
	}
	cancel()
	time.Sleep(500 * time.Millisecond)
	completed.Close()
	imported.Close()
	completed.WaitClosed()
	imported.WaitClosed()
}
