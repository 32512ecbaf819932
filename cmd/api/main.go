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

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-order-fulfillment/internal/config"
	"github.com/ariefcatur/go-order-fulfillment/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/lifecycle"
	"github.com/ariefcatur/go-order-fulfillment/internal/logging"
	"github.com/ariefcatur/go-order-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/outbox"
	"github.com/ariefcatur/go-order-fulfillment/internal/payment"
	"github.com/ariefcatur/go-order-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/ariefcatur/go-order-fulfillment/internal/reservation"
	"github.com/ariefcatur/go-order-fulfillment/internal/settlement"
	"github.com/ariefcatur/go-order-fulfillment/internal/tracing"
	"github.com/ariefcatur/go-order-fulfillment/internal/upstream"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logging.New(cfg.ServiceName+"-api", cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	tracing.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	signer, err := payment.NewSigner(cfg.PaymentSigningKey)
	if err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, idempotency and dedup degrade", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	var runner orders.Runner
	switch cfg.Store {
	case "memory":
		// Nothing else can see this state, so the sweeper and relay run here.
		mem := memstore.New().WithOutboxRetries(cfg.OutboxMaxRetries)
		runner = mem
		prod := kafkax.NewProducer(log, cfg.KafkaBrokers)
		defer prod.Close()
		relay := outbox.NewRelay(log, mem, outbox.NewDispatcher(log, prod, cfg.OutboxTopic), cfg.ServiceName+"-api")
		g.Go(func() error { return relay.Run(gctx) })
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
		runner = postgres.NewStore(log, db)
	}

	coord := reservation.NewCoordinator(log, runner, signer, reservation.Options{
		TTL:        cfg.ReservationTTL,
		TxAttempts: cfg.TxMaxAttempts,
		SweepBatch: cfg.SweepBatch,
		Producer:   cfg.ServiceName,
	})
	if cfg.Store == "memory" {
		sweeper := reservation.NewSweeper(log, coord, cfg.SweepInterval)
		g.Go(func() error { return sweeper.Run(gctx) })
	}
	machine := lifecycle.New(log, coord)
	checkout := reservation.NewCheckout(coord,
		upstream.NewPricing(log, cfg.PricingURL, cfg.UpstreamTimeout),
		upstream.NewAddresses(log, cfg.AddressURL, cfg.UpstreamTimeout))
	settle := settlement.New(log, coord, signer, redisx.NewDedup(rdb, "settlement"))

	router := httpx.NewRouter(log)
	(&httpx.CheckoutHandler{Log: log, Checkout: checkout, Idempotency: redisx.NewIdempotency(rdb)}).Register(router)
	(&httpx.OrdersHandler{Log: log, Machine: machine, Status: redisx.NewStatusCache(rdb)}).Register(router)
	(&httpx.AdminHandler{Log: log, Machine: machine, Coord: coord}).Register(router)
	(&httpx.WebhookHandler{Log: log, Settlement: settle}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
