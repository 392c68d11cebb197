package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/woo-erp-sync/internal/config"
	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	"github.com/ariefcatur/woo-erp-sync/internal/httpx"
	kafkax "github.com/ariefcatur/woo-erp-sync/internal/kafka"
	"github.com/ariefcatur/woo-erp-sync/internal/logx"
	"github.com/ariefcatur/woo-erp-sync/internal/postgres"
	"github.com/ariefcatur/woo-erp-sync/internal/reconcile"
	"github.com/ariefcatur/woo-erp-sync/internal/redisx"
	"github.com/ariefcatur/woo-erp-sync/internal/woo"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.LogLevel, cfg.LogFormat).With(zap.String("service", cfg.ServiceName))
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN, log); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: cfg.PostgresMax})
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	store := &erp.Repo{DB: db}

	if err := seedProfile(ctx, store, cfg.Profile); err != nil {
		log.Fatal("seed sync profile", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	requests := kafkax.NewProducer(cfg.KafkaBrokers, erp.TopicRunRequested, 1024, log)
	requests.Start(ctx)
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
		ServiceName:  cfg.ServiceName,
		LookbackDays: cfg.Sync.LookbackDays,
	}

	router := httpx.NewRouter(log.Named("http"))
	(&httpx.ProfilesHandler{Store: store, Runs: svc, Requests: requests, Service: cfg.ServiceName, Log: log}).Register(router)
	(&httpx.OrdersHandler{Store: store}).Register(router)
	(&httpx.BookingsHandler{Store: store}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range []*kafkax.Producer{requests, completed, imported} {
		p.Close() // tutup inbox -> flush & close writer
	}
	cancel()
	for _, p := range []*kafkax.Producer{requests, completed, imported} {
		p.WaitClosed()
	}
}

// seedProfile stores the profile described by WOO_* env vars once, so a
// fresh install can sync before anyone calls the API.
func seedProfile(ctx context.Context, store erp.Store, seed config.ProfileSeed) error {
	if seed.Empty() {
		return nil
	}
	ps, err := store.ListProfiles(ctx, false)
	if err != nil {
		return err
	}
	for _, p := range ps {
		if p.URL == seed.URL {
			return nil
		}
	}
	return store.SaveProfile(ctx, &erp.Profile{
		Name:           seed.Name,
		URL:            seed.URL,
		ConsumerKey:    seed.ConsumerKey,
		ConsumerSecret: seed.ConsumerSecret,
		RoomsURL:       seed.RoomsURL,
		BookingsURL:    seed.BookingsURL,
		Enabled:        true,
	})
}
