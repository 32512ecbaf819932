package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

// Rate stores the customer's single rating of a delivered order.
func (m *Machine) Rate(ctx context.Context, orderID, userID string, score int, comment string) (*orders.Order, error) {
	if score < 1 || score > 5 {
		return nil, orders.InvalidArgument("score must be between 1 and 5")
	}
	return m.mutate(ctx, orderID, func(ctx context.Context, tx orders.Tx, o *orders.Order) error {
		if o.UserID != userID {
			return fmt.Errorf("order %s: %w", orderID, orders.ErrOrderNotFound)
		}
		if o.Status != orders.StatusDelivered && o.Status != orders.StatusCompleted {
			return fmt.Errorf("order is %s: %w", o.Status, orders.ErrRatingNotAllowed)
		}
		if o.Rating != nil {
			return fmt.Errorf("order already rated: %w", orders.ErrRatingNotAllowed)
		}
		now := m.coord.Now()
		o.Rating = &orders.Rating{Score: score, Comment: strings.TrimSpace(comment), RatedAt: now}
		o.UpdatedAt = now
		if err := tx.Orders().Save(ctx, o); err != nil {
			return err
		}
		return m.coord.Emit(ctx, tx, orders.EventOrderRated, o, "")
	})
}

func (m *Machine) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	var out *orders.Order
	err := m.coord.Atomically(ctx, func(ctx context.Context, tx orders.Tx) error {
		o, err := tx.Orders().Get(ctx, orderID)
		out = o
		return err
	})
	return out, err
}

// GetForUser hides orders of other users behind ErrOrderNotFound.
func (m *Machine) GetForUser(ctx context.Context, orderID, userID string) (*orders.Order, error) {
	o, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", orderID, orders.ErrOrderNotFound)
	}
	return o, nil
}

func (m *Machine) List(ctx context.Context, f orders.ListFilter) ([]*orders.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, orders.InvalidArgument("unknown status %q", f.Status)
	}
	var out []*orders.Order
	err := m.coord.Atomically(ctx, func(ctx context.Context, tx orders.Tx) error {
		list, err := tx.Orders().List(ctx, f)
		out = list
		return err
	})
	return out, err
}
