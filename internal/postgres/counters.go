package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type counterStore struct{ q pgx.Tx }

func (s counterStore) EnsureExists(ctx context.Context, unitID string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO inventory_counters (unit_id) VALUES ($1)
		ON CONFLICT (unit_id) DO NOTHING`, unitID)
	return err
}

func (s counterStore) Get(ctx context.Context, unitID string) (orders.Counter, error) {
	var c orders.Counter
	err := s.q.QueryRow(ctx, `
		SELECT unit_id, on_hand, reserved, safety_stock, updated_at
		FROM inventory_counters WHERE unit_id = $1
		FOR UPDATE`, unitID).
		Scan(&c.UnitID, &c.OnHand, &c.Reserved, &c.SafetyStock, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Counter{}, fmt.Errorf("unit %s: %w", unitID, orders.ErrCounterNotFound)
	}
	return c, err
}

// update runs a guarded UPDATE; zero affected rows means the guard refused the
// change or the counter does not exist.
func (s counterStore) update(ctx context.Context, unitID, sql string, args ...any) error {
	tag, err := s.q.Exec(ctx, sql, append([]any{unitID}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_counters WHERE unit_id = $1)`, unitID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("unit %s: %w", unitID, orders.ErrCounterNotFound)
	}
	return fmt.Errorf("unit %s: %w", unitID, orders.ErrInconsistentState)
}

func (s counterStore) AdjustReserved(ctx context.Context, unitID string, delta int64) error {
	return s.update(ctx, unitID, `
		UPDATE inventory_counters SET reserved = reserved + $2, updated_at = now()
		WHERE unit_id = $1 AND reserved + $2 >= 0`, delta)
}

func (s counterStore) CommitOut(ctx context.Context, unitID string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("unit %s commit %d: %w", unitID, qty, orders.ErrInconsistentState)
	}
	return s.update(ctx, unitID, `
		UPDATE inventory_counters
		SET on_hand = on_hand - $2, reserved = reserved - $2, updated_at = now()
		WHERE unit_id = $1 AND on_hand >= $2 AND reserved >= $2`, qty)
}

func (s counterStore) RestoreOnHand(ctx context.Context, unitID string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("unit %s restore %d: %w", unitID, qty, orders.ErrInconsistentState)
	}
	return s.update(ctx, unitID, `
		UPDATE inventory_counters SET on_hand = on_hand + $2, updated_at = now()
		WHERE unit_id = $1`, qty)
}

func (s counterStore) SetSafetyStock(ctx context.Context, unitID string, qty int64) error {
	if qty < 0 {
		return fmt.Errorf("unit %s safety stock %d: %w", unitID, qty, orders.ErrInconsistentState)
	}
	return s.update(ctx, unitID, `
		UPDATE inventory_counters SET safety_stock = $2, updated_at = now()
		WHERE unit_id = $1`, qty)
}
