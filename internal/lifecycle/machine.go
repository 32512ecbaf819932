// Package lifecycle drives orders through their status graph on behalf of
// customers and operators. Stock side effects go through the reservation
// coordinator, inside the same transaction as the status change.
package lifecycle

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/reservation"
)

type Actor struct {
	ID   string
	Role orders.Role
}

type Machine struct {
	log    *zap.Logger
	coord  *reservation.Coordinator
	tracer trace.Tracer
}

func New(log *zap.Logger, coord *reservation.Coordinator) *Machine {
	return &Machine{log: log, coord: coord, tracer: otel.Tracer("lifecycle")}
}

// managed statuses are only reached through their dedicated operation.
var managed = map[orders.Status]string{
	orders.StatusConfirmed:     "payment settlement",
	orders.StatusPaymentFailed: "payment settlement",
	orders.StatusRefunded:      "refund",
}

// ApplyTransition moves the order along one edge of the status graph. CANCELLED
// carries the cancel side effects; statuses owned by settlement or refund are
// refused.
func (m *Machine) ApplyTransition(ctx context.Context, orderID string, to orders.Status, actor Actor, notes string) (*orders.Order, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.apply_transition")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("order.to", string(to)))

	if !to.Valid() {
		return nil, orders.InvalidArgument("unknown status %q", to)
	}
	return m.mutate(ctx, orderID, func(ctx context.Context, tx orders.Tx, o *orders.Order) error {
		if to == orders.StatusCancelled {
			return m.cancel(ctx, tx, o, actor, notes)
		}
		if via, ok := managed[to]; ok {
			return fmt.Errorf("%w: %s is set by %s", &orders.TransitionError{From: o.Status, To: to}, to, via)
		}
		return m.advance(ctx, tx, o, to, actor, notes)
	})
}

// UpdateStatus is the operator entry point. SHIPPED needs tracking data and goes
// through Ship.
func (m *Machine) UpdateStatus(ctx context.Context, orderID string, to orders.Status, actor Actor, notes string) (*orders.Order, error) {
	if to == orders.StatusShipped {
		return nil, fmt.Errorf("%w: use ship to set %s", orders.ErrInvalidTransition, to)
	}
	return m.ApplyTransition(ctx, orderID, to, actor, notes)
}

func (m *Machine) advance(ctx context.Context, tx orders.Tx, o *orders.Order, to orders.Status, actor Actor, notes string) error {
	if !orders.CanTransition(o.Status, to) {
		return &orders.TransitionError{From: o.Status, To: to}
	}
	now := m.coord.Now()
	switch to {
	case orders.StatusShipped:
		o.ShippedAt = &now
	case orders.StatusDelivered:
		o.DeliveredAt = &now
	}
	o.Record(to, now, actor.ID, actor.Role, notes)
	if err := tx.Orders().Save(ctx, o); err != nil {
		return err
	}
	return m.coord.Emit(ctx, tx, orders.EventOrderStatusChanged, o, notes)
}

// UserCancel cancels the caller's own order while it has not left processing.
func (m *Machine) UserCancel(ctx context.Context, orderID, userID, reason string) (*orders.Order, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.user_cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	return m.mutate(ctx, orderID, func(ctx context.Context, tx orders.Tx, o *orders.Order) error {
		if o.UserID != userID {
			return fmt.Errorf("order %s: %w", orderID, orders.ErrOrderNotFound)
		}
		if !o.Status.Cancellable() {
			return &orders.TransitionError{From: o.Status, To: orders.StatusCancelled}
		}
		return m.cancel(ctx, tx, o, Actor{ID: userID, Role: orders.RoleCustomer}, reason)
	})
}

// cancel releases live claims, returns stock that was already committed and
// flags paid online orders for refund.
func (m *Machine) cancel(ctx context.Context, tx orders.Tx, o *orders.Order, actor Actor, reason string) error {
	if !orders.CanTransition(o.Status, orders.StatusCancelled) {
		return &orders.TransitionError{From: o.Status, To: orders.StatusCancelled}
	}
	if err := m.coord.Release(ctx, tx, o); err != nil {
		return err
	}
	if err := m.coord.RestockCommitted(ctx, tx, o); err != nil {
		return err
	}
	now := m.coord.Now()
	if o.PaymentStatus == orders.PaymentPaid && o.PaymentMethod == orders.PaymentOnline {
		o.RefundPending = true
	}
	o.CancelledAt = &now
	o.CancelReason = reason
	o.Record(orders.StatusCancelled, now, actor.ID, actor.Role, reason)
	if err := tx.Orders().Save(ctx, o); err != nil {
		return err
	}
	m.log.Info("order cancelled",
		zap.String("order_id", o.ID), zap.String("by", actor.ID), zap.Bool("refund_pending", o.RefundPending))
	return m.coord.Emit(ctx, tx, orders.EventOrderCancelled, o, reason)
}

type ShipRequest struct {
	TrackingNumber  string
	ShippingCompany string
	Notes           string
}

// Ship hands the order to a carrier. An order still in PROCESSING passes through
// READY_TO_SHIP on the way.
func (m *Machine) Ship(ctx context.Context, orderID string, req ShipRequest, actor Actor) (*orders.Order, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.ship")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	if req.TrackingNumber == "" {
		return nil, orders.InvalidArgument("tracking number is required")
	}
	return m.mutate(ctx, orderID, func(ctx context.Context, tx orders.Tx, o *orders.Order) error {
		now := m.coord.Now()
		switch o.Status {
		case orders.StatusProcessing:
			o.Record(orders.StatusReadyToShip, now, actor.ID, actor.Role, "")
		case orders.StatusReadyToShip:
		default:
			return &orders.TransitionError{From: o.Status, To: orders.StatusShipped}
		}
		o.TrackingNumber = req.TrackingNumber
		o.ShippingCompany = req.ShippingCompany
		o.ShippedAt = &now
		o.Record(orders.StatusShipped, now, actor.ID, actor.Role, req.Notes)
		if err := tx.Orders().Save(ctx, o); err != nil {
			return err
		}
		return m.coord.Emit(ctx, tx, orders.EventOrderShipped, o, req.TrackingNumber)
	})
}

func (m *Machine) mutate(ctx context.Context, orderID string, fn func(ctx context.Context, tx orders.Tx, o *orders.Order) error) (*orders.Order, error) {
	var out *orders.Order
	err := m.coord.Atomically(ctx, func(ctx context.Context, tx orders.Tx) error {
		o, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
