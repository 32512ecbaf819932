package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type reservationStore struct{ q pgx.Tx }

const reservationColumns = `id, unit_id, order_id, qty, status, expires_at, created_at, updated_at`

func (s reservationStore) Insert(ctx context.Context, r orders.Reservation) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO stock_reservations (id, unit_id, order_id, qty, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		r.ID, r.UnitID, r.OrderID, r.Qty, string(r.Status), r.ExpiresAt, r.CreatedAt)
	return err
}

func (s reservationStore) ListByOrder(ctx context.Context, orderID string, statuses ...orders.ReservationStatus) ([]orders.Reservation, error) {
	want := make([]string, 0, len(statuses))
	for _, st := range statuses {
		want = append(want, string(st))
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM stock_reservations
		WHERE order_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY unit_id
		FOR UPDATE`, orderID, want)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (s reservationStore) SetStatus(ctx context.Context, id string, to orders.ReservationStatus) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE stock_reservations SET status = $2, updated_at = now()
		WHERE id = $1 AND status = 'ACTIVE'`, id, string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s: %w", id, orders.ErrReservationFinal)
	}
	return nil
}

// ListExpired skips rows another sweeper already holds.
func (s reservationStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]orders.Reservation, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM stock_reservations
		WHERE status = 'ACTIVE' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func collectReservations(rows pgx.Rows) ([]orders.Reservation, error) {
	defer rows.Close()
	var out []orders.Reservation
	for rows.Next() {
		var r orders.Reservation
		var status string
		if err := rows.Scan(&r.ID, &r.UnitID, &r.OrderID, &r.Qty, &status, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = orders.ReservationStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
