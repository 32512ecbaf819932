package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

func TestFailedTxLeavesNoTrace(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		require.NoError(t, tx.Counters().EnsureExists(ctx, "u1"))
		require.NoError(t, tx.Orders().Insert(ctx, &orders.Order{ID: "o1", Number: "n1"}))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, ok := s.Counter("u1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.OrderCount())
}

func TestInjectedConflictDiscardsWork(t *testing.T) {
	s := New()
	s.InjectConflicts(1)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return tx.Counters().EnsureExists(ctx, "u1")
	})
	assert.ErrorIs(t, err, orders.ErrTxConflict)
	_, ok := s.Counter("u1")
	assert.False(t, ok)

	err = s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return tx.Counters().EnsureExists(ctx, "u1")
	})
	assert.NoError(t, err)
	_, ok = s.Counter("u1")
	assert.True(t, ok)
}

func TestCounterGuardsAgainstNegativeValues(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		cs := tx.Counters()
		require.NoError(t, cs.EnsureExists(ctx, "u1"))
		require.NoError(t, cs.RestoreOnHand(ctx, "u1", 3))
		require.NoError(t, cs.AdjustReserved(ctx, "u1", 2))

		assert.ErrorIs(t, cs.AdjustReserved(ctx, "u1", -3), orders.ErrInconsistentState)
		assert.ErrorIs(t, cs.CommitOut(ctx, "u1", 3), orders.ErrInconsistentState)
		require.NoError(t, cs.CommitOut(ctx, "u1", 2))
		return nil
	})
	require.NoError(t, err)

	c, _ := s.Counter("u1")
	assert.Equal(t, int64(1), c.OnHand)
	assert.Equal(t, int64(0), c.Reserved)
}

func TestReservationFinalStatesAreFinal(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		rs := tx.Reservations()
		require.NoError(t, rs.Insert(ctx, orders.Reservation{ID: "r1", OrderID: "o1", UnitID: "u1", Qty: 1, Status: orders.ReservationActive, ExpiresAt: now}))
		assert.ErrorIs(t, rs.Insert(ctx, orders.Reservation{ID: "r2", OrderID: "o1", UnitID: "u1", Qty: 1}), orders.ErrInvalidArgument)

		expired, err := rs.ListExpired(ctx, now.Add(time.Second), 10)
		require.NoError(t, err)
		assert.Len(t, expired, 1)

		require.NoError(t, rs.SetStatus(ctx, "r1", orders.ReservationCommitted))
		assert.ErrorIs(t, rs.SetStatus(ctx, "r1", orders.ReservationCancelled), orders.ErrReservationFinal)

		expired, err = rs.ListExpired(ctx, now.Add(time.Second), 10)
		require.NoError(t, err)
		assert.Empty(t, expired)
		return nil
	})
	require.NoError(t, err)
}

func TestListOrdersFiltersAndPages(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		for i, u := range []string{"a", "b", "a", "a"} {
			o := &orders.Order{ID: string(rune('0' + i)), Number: string(rune('A' + i)), UserID: u, Status: orders.StatusPending, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
			require.NoError(t, tx.Orders().Insert(ctx, o))
		}
		return nil
	})
	require.NoError(t, err)

	_ = s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		list, err := tx.Orders().List(ctx, orders.ListFilter{UserID: "a", Limit: 2})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "3", list[0].ID)
		assert.Equal(t, "2", list[1].ID)

		list, err = tx.Orders().List(ctx, orders.ListFilter{UserID: "a", Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "0", list[0].ID)
		return nil
	})
}
