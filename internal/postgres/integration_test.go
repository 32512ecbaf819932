//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("fulfillment"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "schema must be re-runnable")
	return pool
}

func seedUnit(t *testing.T, s *Store, unitID string, onHand int64) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		if err := tx.Counters().EnsureExists(ctx, unitID); err != nil {
			return err
		}
		return tx.Counters().RestoreOnHand(ctx, unitID, onHand)
	})
	require.NoError(t, err)
}

func TestStoreRoundTripsOrders(t *testing.T) {
	pool := setupPool(t)
	s := NewStore(zap.NewNop(), pool)
	ctx := context.Background()
	seedUnit(t, s, "unit-1", 5)

	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &orders.Order{
		ID:              uuid.NewString(),
		UserID:          "user-1",
		PaymentStatus:   orders.PaymentPending,
		PaymentMethod:   orders.PaymentOnline,
		Currency:        "USD",
		ShippingAddress: orders.Address{ID: "addr-1", Recipient: "R", Line1: "1 Main", City: "X", PostalCode: "1", Country: "US"},
		Items:           []orders.Item{{UnitID: "unit-1", Qty: 2, UnitPrice: decimal.RequireFromString("5.00"), BasePrice: decimal.RequireFromString("6.00"), LineTotal: decimal.RequireFromString("10.00")}},
		Subtotal:        decimal.RequireFromString("12.00"),
		Discount:        decimal.RequireFromString("2.00"),
		Total:           decimal.RequireFromString("10.00"),
		PaymentIntentID: "pi_" + uuid.NewString(),
		CreatedAt:       now,
	}
	o.Record(orders.StatusPending, now, "user-1", orders.RoleCustomer, "")

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		seq, err := tx.Orders().NextOrderNumber(ctx, now.Year())
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), seq)
		o.Number = "ORD-test-000001"
		if err := tx.Orders().Insert(ctx, o); err != nil {
			return err
		}
		return tx.Outbox().Enqueue(ctx, orders.Envelope{EventID: "e1", EventType: orders.EventOrderCreated, CorrelationID: o.ID, Payload: []byte(`{}`)})
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		got, err := tx.Orders().GetByPaymentIntent(ctx, o.PaymentIntentID)
		require.NoError(t, err)
		assert.True(t, o.Total.Equal(got.Total))
		assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
		require.Len(t, got.Items, 1)
		require.Len(t, got.StatusHistory, 1)

		got.Record(orders.StatusConfirmed, now.Add(time.Second), "payment", orders.RoleSystem, "paid")
		got.PaymentStatus = orders.PaymentPaid
		return tx.Orders().Save(ctx, got)
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		list, err := tx.Orders().List(ctx, orders.ListFilter{UserID: "user-1"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, orders.StatusConfirmed, list[0].Status)
		assert.Len(t, list[0].StatusHistory, 2)
		return nil
	})
	require.NoError(t, err)

	events, err := NewOutboxStore(zap.NewNop(), pool, 5).LockBatch(ctx, "relay-1", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, orders.TopicOrderEvents, events[0].Topic)
	assert.Equal(t, orders.EventOrderCreated, events[0].Headers["x-event-type"])
}

func TestCounterGuardsAndReservations(t *testing.T) {
	pool := setupPool(t)
	s := NewStore(zap.NewNop(), pool)
	ctx := context.Background()
	seedUnit(t, s, "unit-g", 3)

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return tx.Counters().AdjustReserved(ctx, "unit-g", -1)
	})
	assert.ErrorIs(t, err, orders.ErrInconsistentState)

	err = s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return tx.Counters().CommitOut(ctx, "missing", 1)
	})
	assert.ErrorIs(t, err, orders.ErrCounterNotFound)

	past := time.Now().Add(-time.Minute)
	r := orders.Reservation{ID: uuid.NewString(), UnitID: "unit-g", OrderID: "o-1", Qty: 2, Status: orders.ReservationActive, ExpiresAt: past, CreatedAt: past}
	err = s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		if err := tx.Reservations().Insert(ctx, r); err != nil {
			return err
		}
		return tx.Counters().AdjustReserved(ctx, "unit-g", 2)
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		expired, err := tx.Reservations().ListExpired(ctx, time.Now(), 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		if err := tx.Reservations().SetStatus(ctx, r.ID, orders.ReservationCancelled); err != nil {
			return err
		}
		return tx.Counters().AdjustReserved(ctx, "unit-g", -2)
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return tx.Reservations().SetStatus(ctx, r.ID, orders.ReservationCommitted)
	})
	assert.ErrorIs(t, err, orders.ErrReservationFinal)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	pool := setupPool(t)
	s := NewStore(zap.NewNop(), pool)
	seedUnit(t, s, "unit-c", 5)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
				a, _, err := orders.CheckAvailability(ctx, tx.Counters(), "unit-c", 1)
				if err != nil {
					return err
				}
				if !a.Available {
					return &orders.ShortageError{UnitID: "unit-c", Requested: 1}
				}
				return tx.Counters().AdjustReserved(ctx, "unit-c", 1)
			})
			if err == nil {
				mu.Lock()
				reserved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, reserved, 5)
	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		c, err := tx.Counters().Get(ctx, "unit-c")
		require.NoError(t, err)
		assert.Equal(t, int64(reserved), c.Reserved)
		return nil
	})
	require.NoError(t, err)
}
