package reservation

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

const expiredNote = "reservation expired"

// ExpireReservations releases every ACTIVE reservation whose expiry lies before
// now and cancels orders left PENDING by it. Work is done in batches, one
// transaction each. It returns the number of reservations released.
func (c *Coordinator) ExpireReservations(ctx context.Context, now time.Time) (int, error) {
	ctx, span := c.tracer.Start(ctx, "reservation.expire")
	defer span.End()

	total := 0
	for {
		n, err := c.expireBatch(ctx, now)
		total += n
		if err != nil {
			span.RecordError(err)
			return total, err
		}
		if n < c.batch {
			break
		}
	}
	span.SetAttributes(attribute.Int("reservations.released", total))
	return total, nil
}

func (c *Coordinator) expireBatch(ctx context.Context, now time.Time) (int, error) {
	var released, cancelled int
	err := c.Atomically(ctx, func(ctx context.Context, tx orders.Tx) error {
		released, cancelled = 0, 0
		expired, err := tx.Reservations().ListExpired(ctx, now, c.batch)
		if err != nil {
			return err
		}
		sort.Slice(expired, func(i, j int) bool { return expired[i].UnitID < expired[j].UnitID })

		var orderIDs []string
		seen := map[string]bool{}
		for _, r := range expired {
			if err := c.releaseOne(ctx, tx, r); err != nil {
				return err
			}
			env, err := orders.NewEnvelope(orders.EventReservationExpired, c.producer, r.OrderID, c.Now(), orders.ReservationExpiredPayload{
				ReservationID: r.ID,
				OrderID:       r.OrderID,
				UnitID:        r.UnitID,
				Qty:           r.Qty,
			})
			if err != nil {
				return err
			}
			if err := tx.Outbox().Enqueue(ctx, env); err != nil {
				return err
			}
			released++
			if !seen[r.OrderID] {
				seen[r.OrderID] = true
				orderIDs = append(orderIDs, r.OrderID)
			}
		}

		for _, id := range orderIDs {
			ok, err := c.cancelExpiredOrder(ctx, tx, id)
			if err != nil {
				return err
			}
			if ok {
				cancelled++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		c.log.Info("expired reservations released", zap.Int("released", released), zap.Int("orders_cancelled", cancelled))
	}
	return released, nil
}

// cancelExpiredOrder cancels a PENDING order whose claim lapsed. Orders that moved
// on in the meantime are left alone.
func (c *Coordinator) cancelExpiredOrder(ctx context.Context, tx orders.Tx, orderID string) (bool, error) {
	o, err := tx.Orders().Get(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		c.log.Warn("expired reservation without order", zap.String("order_id", orderID))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if o.Status != orders.StatusPending {
		return false, nil
	}
	if err := c.Release(ctx, tx, o); err != nil {
		return false, err
	}
	now := c.Now()
	o.CancelledAt = &now
	o.CancelReason = expiredNote
	o.Record(orders.StatusCancelled, now, string(orders.RoleSystem), orders.RoleSystem, expiredNote)
	if err := tx.Orders().Save(ctx, o); err != nil {
		return false, err
	}
	return true, c.Emit(ctx, tx, orders.EventOrderCancelled, o, expiredNote)
}
