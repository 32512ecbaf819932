package reservation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

// adjustReserved logs counter invariant violations loudly before failing the
// transaction.
func (c *Coordinator) adjustReserved(ctx context.Context, tx orders.Tx, unitID string, delta int64) error {
	err := tx.Counters().AdjustReserved(ctx, unitID, delta)
	if errors.Is(err, orders.ErrInconsistentState) {
		c.log.Error("reserved counter would go negative",
			zap.String("unit_id", unitID), zap.Int64("delta", delta), zap.Error(err))
	}
	return err
}

func (c *Coordinator) activeClaims(ctx context.Context, tx orders.Tx, o *orders.Order) ([]orders.Reservation, error) {
	active, err := tx.Reservations().ListByOrder(ctx, o.ID, orders.ReservationActive)
	if err != nil {
		return nil, err
	}
	claimed := make(map[string]int64, len(active))
	for _, r := range active {
		claimed[r.UnitID] += r.Qty
	}
	for unit, qty := range o.UnitQuantities() {
		if claimed[unit] != qty {
			c.log.Error("active reservations do not cover order",
				zap.String("order_id", o.ID), zap.String("unit_id", unit),
				zap.Int64("ordered", qty), zap.Int64("claimed", claimed[unit]))
			return nil, fmt.Errorf("order %s unit %s: claimed %d of %d: %w", o.ID, unit, claimed[unit], qty, orders.ErrInconsistentState)
		}
	}
	return active, nil
}

// Commit turns every ACTIVE reservation of o into a stock exit: on-hand and
// reserved drop by the claimed quantity, the ledger records it and the
// reservation becomes COMMITTED.
func (c *Coordinator) Commit(ctx context.Context, tx orders.Tx, o *orders.Order) error {
	active, err := c.activeClaims(ctx, tx, o)
	if err != nil {
		return err
	}
	for _, r := range active {
		if err := tx.Counters().CommitOut(ctx, r.UnitID, r.Qty); err != nil {
			c.log.Error("commit out failed", zap.String("unit_id", r.UnitID), zap.Int64("qty", r.Qty), zap.Error(err))
			return err
		}
		err := tx.Ledger().Append(ctx, orders.LedgerEntry{
			UnitID: r.UnitID,
			Change: -r.Qty,
			Reason: orders.ReasonOrderConfirmedOut,
			RefID:  o.ID,
		})
		if err != nil {
			return err
		}
		if err := tx.Reservations().SetStatus(ctx, r.ID, orders.ReservationCommitted); err != nil {
			return err
		}
	}
	return nil
}

// Release gives back the claim of every ACTIVE reservation of o. On-hand is
// untouched, so no ledger entry is written.
func (c *Coordinator) Release(ctx context.Context, tx orders.Tx, o *orders.Order) error {
	active, err := tx.Reservations().ListByOrder(ctx, o.ID, orders.ReservationActive)
	if err != nil {
		return err
	}
	for _, r := range active {
		if err := c.releaseOne(ctx, tx, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) releaseOne(ctx context.Context, tx orders.Tx, r orders.Reservation) error {
	if err := c.adjustReserved(ctx, tx, r.UnitID, -r.Qty); err != nil {
		return err
	}
	return tx.Reservations().SetStatus(ctx, r.ID, orders.ReservationCancelled)
}

// RestockCommitted returns the stock of every COMMITTED reservation of o to
// on-hand. Used when an order whose stock already left is cancelled before it
// ships.
func (c *Coordinator) RestockCommitted(ctx context.Context, tx orders.Tx, o *orders.Order) error {
	committed, err := tx.Reservations().ListByOrder(ctx, o.ID, orders.ReservationCommitted)
	if err != nil {
		return err
	}
	for _, r := range committed {
		if err := c.Restock(ctx, tx, o.ID, r.UnitID, r.Qty, orders.ReasonOrderCancelledRestock); err != nil {
			return err
		}
	}
	return nil
}

// Restock puts qty of unitID back on hand with a matching ledger entry.
func (c *Coordinator) Restock(ctx context.Context, tx orders.Tx, refID, unitID string, qty int64, reason orders.LedgerReason) error {
	if qty <= 0 {
		return orders.InvalidArgument("unit %s: restock qty must be positive", unitID)
	}
	if err := tx.Counters().RestoreOnHand(ctx, unitID, qty); err != nil {
		return err
	}
	return tx.Ledger().Append(ctx, orders.LedgerEntry{
		UnitID: unitID,
		Change: qty,
		Reason: reason,
		RefID:  refID,
	})
}
