package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-order-fulfillment/internal/config"
	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/logging"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/outbox"
	"github.com/ariefcatur/go-order-fulfillment/internal/payment"
	"github.com/ariefcatur/go-order-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-order-fulfillment/internal/projector"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/ariefcatur/go-order-fulfillment/internal/reservation"
	"github.com/ariefcatur/go-order-fulfillment/internal/tracing"
)

// The worker runs the background half: reservation expiry, the outbox relay and
// the order status projector.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logging.New(cfg.ServiceName+"-worker", cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("worker exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Store != "postgres" {
		return fmt.Errorf("worker needs STORE=postgres, got %q", cfg.Store)
	}
	tracing.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	signer, err := payment.NewSigner(cfg.PaymentSigningKey)
	if err != nil {
		return err
	}
	coord := reservation.NewCoordinator(log, postgres.NewStore(log, db), signer, reservation.Options{
		TTL:        cfg.ReservationTTL,
		TxAttempts: cfg.TxMaxAttempts,
		SweepBatch: cfg.SweepBatch,
		Producer:   cfg.ServiceName + "-worker",
	})

	prod := kafkax.NewProducer(log, cfg.KafkaBrokers)
	defer prod.Close()

	relayID := cfg.ServiceName + "-" + uuid.NewString()[:8]
	relay := outbox.NewRelay(log,
		postgres.NewOutboxStore(log, db, cfg.OutboxMaxRetries),
		outbox.NewDispatcher(log, prod, cfg.OutboxTopic),
		relayID)
	sweeper := reservation.NewSweeper(log, coord, cfg.SweepInterval)
	proj := projector.New(log, redisx.NewStatusCache(rdb))
	cons := kafkax.NewConsumer(log, cfg.KafkaBrokers, cfg.WorkerGroup, orders.TopicOrderEvents, cfg.WorkerConcurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error {
		log.Info("projector started",
			zap.String("group", cfg.WorkerGroup), zap.String("topic", orders.TopicOrderEvents), zap.Int("workers", cfg.WorkerConcurrency))
		return cons.Start(gctx, proj.Handle)
	})
	log.Info("worker running", zap.String("relay_id", relayID))
	return g.Wait()
}
