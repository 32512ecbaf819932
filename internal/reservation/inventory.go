package reservation

import (
	"context"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

// ReceiveStock books a goods receipt: on-hand grows by qty with a STOCK_RECEIVED
// ledger entry referencing ref.
func (c *Coordinator) ReceiveStock(ctx context.Context, unitID string, qty int64, ref string) (orders.Counter, error) {
	if unitID == "" {
		return orders.Counter{}, orders.InvalidArgument("unit id is required")
	}
	if qty <= 0 {
		return orders.Counter{}, orders.InvalidArgument("qty must be positive")
	}
	if ref == "" {
		return orders.Counter{}, orders.InvalidArgument("reference is required")
	}
	var out orders.Counter
	err := c.Atomically(ctx, func(ctx context.Context, tx orders.Tx) error {
		if err := tx.Counters().EnsureExists(ctx, unitID); err != nil {
			return err
		}
		if err := c.Restock(ctx, tx, ref, unitID, qty, orders.ReasonStockReceived); err != nil {
			return err
		}
		ctr, err := tx.Counters().Get(ctx, unitID)
		if err != nil {
			return err
		}
		out = ctr
		env, err := orders.NewEnvelope(orders.EventStockReceived, c.producer, unitID, c.Now(), orders.StockReceivedPayload{
			UnitID:    unitID,
			Qty:       qty,
			Reference: ref,
			OnHand:    ctr.OnHand,
		})
		if err != nil {
			return err
		}
		return tx.Outbox().Enqueue(ctx, env)
	})
	if err != nil {
		return orders.Counter{}, err
	}
	c.log.Info("stock received", zap.String("unit_id", unitID), zap.Int64("qty", qty), zap.String("ref", ref))
	return out, nil
}

func (c *Coordinator) SetSafetyStock(ctx context.Context, unitID string, qty int64) (orders.Counter, error) {
	if unitID == "" {
		return orders.Counter{}, orders.InvalidArgument("unit id is required")
	}
	if qty < 0 {
		return orders.Counter{}, orders.InvalidArgument("safety stock must not be negative")
	}
	var out orders.Counter
	err := c.Atomically(ctx, func(ctx context.Context, tx orders.Tx) error {
		if err := tx.Counters().EnsureExists(ctx, unitID); err != nil {
			return err
		}
		if err := tx.Counters().SetSafetyStock(ctx, unitID, qty); err != nil {
			return err
		}
		ctr, err := tx.Counters().Get(ctx, unitID)
		out = ctr
		return err
	})
	return out, err
}

// Inventory reads one counter with its ledger.
func (c *Coordinator) Inventory(ctx context.Context, unitID string) (orders.Counter, []orders.LedgerEntry, error) {
	var (
		ctr    orders.Counter
		ledger []orders.LedgerEntry
	)
	err := c.Atomically(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		if ctr, err = tx.Counters().Get(ctx, unitID); err != nil {
			return err
		}
		ledger, err = tx.Ledger().ListByUnit(ctx, unitID)
		return err
	})
	return ctr, ledger, err
}
