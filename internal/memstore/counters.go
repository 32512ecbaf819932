package memstore

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type counterStore struct{ t *tx }

func (s counterStore) EnsureExists(_ context.Context, unitID string) error {
	if _, ok := s.t.st.counters[unitID]; !ok {
		s.t.st.counters[unitID] = orders.Counter{UnitID: unitID, UpdatedAt: s.t.now()}
	}
	return nil
}

func (s counterStore) Get(_ context.Context, unitID string) (orders.Counter, error) {
	c, ok := s.t.st.counters[unitID]
	if !ok {
		return orders.Counter{}, fmt.Errorf("unit %s: %w", unitID, orders.ErrCounterNotFound)
	}
	return c, nil
}

func (s counterStore) update(unitID string, fn func(c *orders.Counter) bool) error {
	c, ok := s.t.st.counters[unitID]
	if !ok {
		return fmt.Errorf("unit %s: %w", unitID, orders.ErrCounterNotFound)
	}
	if !fn(&c) {
		return fmt.Errorf("unit %s: %w", unitID, orders.ErrInconsistentState)
	}
	c.UpdatedAt = s.t.now()
	s.t.st.counters[unitID] = c
	return nil
}

func (s counterStore) AdjustReserved(_ context.Context, unitID string, delta int64) error {
	return s.update(unitID, func(c *orders.Counter) bool {
		if c.Reserved+delta < 0 {
			return false
		}
		c.Reserved += delta
		return true
	})
}

func (s counterStore) CommitOut(_ context.Context, unitID string, qty int64) error {
	return s.update(unitID, func(c *orders.Counter) bool {
		if qty <= 0 || c.OnHand < qty || c.Reserved < qty {
			return false
		}
		c.OnHand -= qty
		c.Reserved -= qty
		return true
	})
}

func (s counterStore) RestoreOnHand(_ context.Context, unitID string, qty int64) error {
	return s.update(unitID, func(c *orders.Counter) bool {
		if qty <= 0 {
			return false
		}
		c.OnHand += qty
		return true
	})
}

func (s counterStore) SetSafetyStock(_ context.Context, unitID string, qty int64) error {
	return s.update(unitID, func(c *orders.Counter) bool {
		if qty < 0 {
			return false
		}
		c.SafetyStock = qty
		return true
	})
}
