package lifecycle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type RefundRequest struct {
	Amount decimal.Decimal
	Reason string
	// Items lists goods that came back to the warehouse.
	Items []orders.ItemQty
}

// Refund pays money back on a paid order. A delivered order is marked RETURNED
// and then REFUNDED; returned items go back on hand. A cancelled order only gets
// its payment back because its stock was restored at cancellation.
func (m *Machine) Refund(ctx context.Context, orderID string, req RefundRequest, actor Actor) (*orders.Order, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.refund")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("refund.amount", req.Amount.StringFixed(2)))

	return m.mutate(ctx, orderID, func(ctx context.Context, tx orders.Tx, o *orders.Order) error {
		if o.PaymentStatus != orders.PaymentPaid {
			return fmt.Errorf("order %s payment is %s: %w", o.ID, o.PaymentStatus, orders.ErrRefundAmountInvalid)
		}
		if !req.Amount.IsPositive() || req.Amount.GreaterThan(o.Total) {
			return fmt.Errorf("refund %s of total %s: %w", req.Amount.StringFixed(2), o.Total.StringFixed(2), orders.ErrRefundAmountInvalid)
		}

		now := m.coord.Now()
		switch o.Status {
		case orders.StatusDelivered:
			o.Record(orders.StatusReturned, now, actor.ID, actor.Role, req.Reason)
			fallthrough
		case orders.StatusReturned:
			if err := m.restockReturned(ctx, tx, o, req.Items); err != nil {
				return err
			}
			o.Record(orders.StatusRefunded, now, actor.ID, actor.Role, req.Reason)
		case orders.StatusCancelled:
			if len(req.Items) > 0 {
				return orders.InvalidArgument("cancelled order %s has no goods to return", o.ID)
			}
			o.UpdatedAt = now
		default:
			return &orders.TransitionError{From: o.Status, To: orders.StatusRefunded}
		}

		amount := req.Amount.Round(2)
		o.RefundAmount = &amount
		o.RefundReason = req.Reason
		o.RefundedAt = &now
		o.RefundPending = false
		o.PaymentStatus = orders.PaymentRefunded
		if err := tx.Orders().Save(ctx, o); err != nil {
			return err
		}
		m.log.Info("order refunded", zap.String("order_id", o.ID), zap.String("amount", amount.StringFixed(2)))
		return m.coord.Emit(ctx, tx, orders.EventOrderRefunded, o, req.Reason)
	})
}

func (m *Machine) restockReturned(ctx context.Context, tx orders.Tx, o *orders.Order, items []orders.ItemQty) error {
	ordered := o.UnitQuantities()
	returned := make(map[string]int64, len(items))
	for _, it := range items {
		if it.Qty <= 0 {
			return orders.InvalidArgument("unit %s: returned qty must be positive", it.UnitID)
		}
		returned[it.UnitID] += it.Qty
		if returned[it.UnitID] > ordered[it.UnitID] {
			return orders.InvalidArgument("unit %s: returned %d of %d ordered", it.UnitID, returned[it.UnitID], ordered[it.UnitID])
		}
	}
	for _, unit := range orders.SortedUnits(returned) {
		if err := m.coord.Restock(ctx, tx, o.ID, unit, returned[unit], orders.ReasonOrderRefunded); err != nil {
			return err
		}
	}
	return nil
}
