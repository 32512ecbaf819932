package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/payment"
	"github.com/ariefcatur/go-order-fulfillment/internal/reservation"
)

var admin = Actor{ID: "admin-1", Role: orders.RoleAdmin}

type harness struct {
	store *memstore.Store
	coord *reservation.Coordinator
	m     *Machine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC) }
	store := memstore.New().WithClock(now)
	signer, err := payment.NewSigner("k")
	require.NoError(t, err)
	coord := reservation.NewCoordinator(zap.NewNop(), store, signer, reservation.Options{Now: now})
	h := &harness{store: store, coord: coord, m: New(zap.NewNop(), coord)}
	_, err = coord.ReceiveStock(context.Background(), "U1", 10, "seed")
	require.NoError(t, err)
	return h
}

func (h *harness) place(t *testing.T, method orders.PaymentMethod, qty int64) *orders.Order {
	t.Helper()
	p, err := h.coord.ReserveAndCreateOrder(context.Background(), reservation.PlaceRequest{
		UserID:        "user-1",
		PaymentMethod: method,
		Quote: orders.Quote{Currency: "USD", Lines: []orders.QuoteLine{{
			UnitID: "U1", Qty: qty, BasePrice: decimal.RequireFromString("10"), FinalPrice: decimal.RequireFromString("10"),
		}}},
	})
	require.NoError(t, err)
	return p.Order
}

// settle commits an online order's reservations the way a successful payment does.
func (h *harness) settle(t *testing.T, o *orders.Order) {
	t.Helper()
	err := h.coord.Atomically(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		cur, err := tx.Orders().Get(ctx, o.ID)
		if err != nil {
			return err
		}
		if err := h.coord.Commit(ctx, tx, cur); err != nil {
			return err
		}
		now := h.coord.Now()
		cur.PaymentStatus = orders.PaymentPaid
		cur.PaidAt = &now
		cur.Record(orders.StatusConfirmed, now, "payment", orders.RoleSystem, "")
		return tx.Orders().Save(ctx, cur)
	})
	require.NoError(t, err)
}

func (h *harness) deliver(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := h.m.UpdateStatus(ctx, id, orders.StatusProcessing, admin, "")
	require.NoError(t, err)
	_, err = h.m.Ship(ctx, id, ShipRequest{TrackingNumber: "TRK1", ShippingCompany: "ACME"}, admin)
	require.NoError(t, err)
	_, err = h.m.UpdateStatus(ctx, id, orders.StatusDelivered, admin, "")
	require.NoError(t, err)
}

func (h *harness) counter(t *testing.T) orders.Counter {
	c, ok := h.store.Counter("U1")
	require.True(t, ok)
	return c
}

func (h *harness) ledgerSum() int64 {
	var sum int64
	for _, e := range h.store.LedgerFor("U1") {
		sum += e.Change
	}
	return sum
}

func TestApplyTransitionFollowsGraph(t *testing.T) {
	h := newHarness(t)
	o := h.place(t, orders.PaymentCOD, 1)
	ctx := context.Background()

	got, err := h.m.ApplyTransition(ctx, o.ID, orders.StatusProcessing, admin, "picking")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, got.Status)
	last := got.StatusHistory[len(got.StatusHistory)-1]
	assert.Equal(t, "picking", last.Notes)
	assert.Equal(t, orders.RoleAdmin, last.Role)

	_, err = h.m.ApplyTransition(ctx, o.ID, orders.StatusDelivered, admin, "")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	_, err = h.m.ApplyTransition(ctx, o.ID, "TELEPORTED", admin, "")
	assert.ErrorIs(t, err, orders.ErrInvalidArgument)

	_, err = h.m.ApplyTransition(ctx, "missing", orders.StatusProcessing, admin, "")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestManagedStatusesAreRefused(t *testing.T) {
	h := newHarness(t)
	o := h.place(t, orders.PaymentOnline, 1)
	ctx := context.Background()

	for _, to := range []orders.Status{orders.StatusConfirmed, orders.StatusPaymentFailed, orders.StatusRefunded, orders.StatusShipped} {
		_, err := h.m.UpdateStatus(ctx, o.ID, to, admin, "")
		assert.ErrorIs(t, err, orders.ErrInvalidTransition, "%s", to)
	}
	got, _ := h.store.Order(o.ID)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Equal(t, int64(1), h.counter(t).Reserved)
}

func TestUserCancelReleasesActiveReservations(t *testing.T) {
	h := newHarness(t)
	o := h.place(t, orders.PaymentOnline, 3)

	got, err := h.m.UserCancel(context.Background(), o.ID, "user-1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, "changed my mind", got.CancelReason)
	assert.NotNil(t, got.CancelledAt)
	assert.False(t, got.RefundPending)

	c := h.counter(t)
	assert.Equal(t, int64(0), c.Reserved)
	assert.Equal(t, int64(10), c.OnHand)
	for _, r := range h.store.ReservationsFor(o.ID) {
		assert.Equal(t, orders.ReservationCancelled, r.Status)
	}
}

func TestUserCancelOfPaidOrderRestocksAndFlagsRefund(t *testing.T) {
	h := newHarness(t)
	o := h.place(t, orders.PaymentOnline, 2)
	h.settle(t, o)
	assert.Equal(t, int64(8), h.counter(t).OnHand)

	got, err := h.m.UserCancel(context.Background(), o.ID, "user-1", "late")
	require.NoError(t, err)
	assert.True(t, got.RefundPending)
	assert.Equal(t, int64(10), h.counter(t).OnHand)
	assert.Equal(t, h.counter(t).OnHand, h.ledgerSum())

	entries := h.store.LedgerFor("U1")
	assert.Equal(t, orders.ReasonOrderCancelledRestock, entries[len(entries)-1].Reason)
}

func TestUserCancelRules(t *testing.T) {
	h := newHarness(t)
	o := h.place(t, orders.PaymentCOD, 1)
	ctx := context.Background()

	_, err := h.m.UserCancel(ctx, o.ID, "someone-else", "")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	_, err = h.m.UpdateStatus(ctx, o.ID, orders.StatusProcessing, admin, "")
	require.NoError(t, err)
	_, err = h.m.UpdateStatus(ctx, o.ID, orders.StatusReadyToShip, admin, "")
	require.NoError(t, err)

	_, err = h.m.UserCancel(ctx, o.ID, "user-1", "")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "not permitted in current status")

	got, err := h.m.UpdateStatus(ctx, o.ID, orders.StatusCancelled, admin, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, int64(10), h.counter(t).OnHand)
}

func TestShipFromProcessingPassesReadyToShip(t *testing.T) {
	h := newHarness(t)
	o := h.place(t, orders.PaymentCOD, 1)
	ctx := context.Background()

	_, err := h.m.Ship(ctx, o.ID, ShipRequest{TrackingNumber: "T"}, admin)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	_, err = h.m.UpdateStatus(ctx, o.ID, orders.StatusProcessing, admin, "")
	require.NoError(t, err)

	_, err = h.m.Ship(ctx, o.ID, ShipRequest{}, admin)
	assert.ErrorIs(t, err, orders.ErrInvalidArgument)

	got, err := h.m.Ship(ctx, o.ID, ShipRequest{TrackingNumber: "TRK-9", ShippingCompany: "ACME"}, admin)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, got.Status)
	assert.Equal(t, "TRK-9", got.TrackingNumber)
	assert.NotNil(t, got.ShippedAt)

	var trail []orders.Status
	for _, e := range got.StatusHistory {
		trail = append(trail, e.Status)
	}
	assert.Equal(t, []orders.Status{orders.StatusConfirmed, orders.StatusProcessing, orders.StatusReadyToShip, orders.StatusShipped}, trail)

	_, err = h.m.UserCancel(ctx, o.ID, "user-1", "")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestRefundDeliveredOrderRestocksReturnedItems(t *testing.T) {
	h := newHarness(t)
	o := h.place(t, orders.PaymentCOD, 3)
	h.deliver(t, o.ID)
	ctx := context.Background()

	got, err := h.m.Refund(ctx, o.ID, RefundRequest{
		Amount: decimal.RequireFromString("20"),
		Reason: "damaged",
		Items:  []orders.ItemQty{{UnitID: "U1", Qty: 2}},
	}, admin)
	require.NoError(t, err)

	assert.Equal(t, orders.StatusRefunded, got.Status)
	assert.Equal(t, orders.PaymentRefunded, got.PaymentStatus)
	require.NotNil(t, got.RefundAmount)
	assert.Equal(t, "20.00", got.RefundAmount.StringFixed(2))
	n := len(got.StatusHistory)
	assert.Equal(t, orders.StatusReturned, got.StatusHistory[n-2].Status)

	assert.Equal(t, int64(9), h.counter(t).OnHand)
	assert.Equal(t, h.counter(t).OnHand, h.ledgerSum())
	entries := h.store.LedgerFor("U1")
	assert.Equal(t, orders.ReasonOrderRefunded, entries[len(entries)-1].Reason)
	assert.Equal(t, int64(2), entries[len(entries)-1].Change)
}

func TestRefundValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending := h.place(t, orders.PaymentOnline, 1)
	_, err := h.m.Refund(ctx, pending.ID, RefundRequest{Amount: decimal.NewFromInt(1)}, admin)
	assert.ErrorIs(t, err, orders.ErrRefundAmountInvalid, "unpaid")

	o := h.place(t, orders.PaymentCOD, 1)
	h.deliver(t, o.ID)

	_, err = h.m.Refund(ctx, o.ID, RefundRequest{Amount: decimal.RequireFromString("10.01")}, admin)
	assert.ErrorIs(t, err, orders.ErrRefundAmountInvalid, "above total")
	_, err = h.m.Refund(ctx, o.ID, RefundRequest{Amount: decimal.Zero}, admin)
	assert.ErrorIs(t, err, orders.ErrRefundAmountInvalid, "zero")
	_, err = h.m.Refund(ctx, o.ID, RefundRequest{Amount: decimal.NewFromInt(5), Items: []orders.ItemQty{{UnitID: "U1", Qty: 2}}}, admin)
	assert.ErrorIs(t, err, orders.ErrInvalidArgument, "more returned than ordered")

	got, _ := h.store.Order(o.ID)
	assert.Equal(t, orders.StatusDelivered, got.Status)

	processing := h.place(t, orders.PaymentCOD, 1)
	_, err = h.m.UpdateStatus(ctx, processing.ID, orders.StatusProcessing, admin, "")
	require.NoError(t, err)
	_, err = h.m.Refund(ctx, processing.ID, RefundRequest{Amount: decimal.NewFromInt(1)}, admin)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestRefundCancelledPaidOrderIsPaymentOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.place(t, orders.PaymentOnline, 1)
	h.settle(t, o)
	_, err := h.m.UserCancel(ctx, o.ID, "user-1", "")
	require.NoError(t, err)
	onHand := h.counter(t).OnHand

	got, err := h.m.Refund(ctx, o.ID, RefundRequest{Amount: o.Total, Reason: "cancelled"}, admin)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, orders.PaymentRefunded, got.PaymentStatus)
	assert.False(t, got.RefundPending)
	assert.Equal(t, onHand, h.counter(t).OnHand)
}

func TestRateOnlyOnceAfterDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.place(t, orders.PaymentCOD, 1)

	_, err := h.m.Rate(ctx, o.ID, "user-1", 5, "")
	assert.ErrorIs(t, err, orders.ErrRatingNotAllowed)

	h.deliver(t, o.ID)
	_, err = h.m.Rate(ctx, o.ID, "user-1", 6, "")
	assert.ErrorIs(t, err, orders.ErrInvalidArgument)
	_, err = h.m.Rate(ctx, o.ID, "user-2", 4, "")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	got, err := h.m.Rate(ctx, o.ID, "user-1", 4, " great ")
	require.NoError(t, err)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 4, got.Rating.Score)
	assert.Equal(t, "great", got.Rating.Comment)

	_, err = h.m.Rate(ctx, o.ID, "user-1", 1, "")
	assert.ErrorIs(t, err, orders.ErrRatingNotAllowed)
}

func TestQueriesScopeToUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.place(t, orders.PaymentCOD, 1)

	_, err := h.m.GetForUser(ctx, o.ID, "user-2")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	got, err := h.m.GetForUser(ctx, o.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)

	list, err := h.m.List(ctx, orders.ListFilter{UserID: "user-1", Status: orders.StatusConfirmed})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = h.m.List(ctx, orders.ListFilter{UserID: "user-2"})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = h.m.List(ctx, orders.ListFilter{Status: "NOPE"})
	assert.ErrorIs(t, err, orders.ErrInvalidArgument)
}
