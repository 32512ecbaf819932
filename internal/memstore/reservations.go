package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type reservationStore struct{ t *tx }

func (s reservationStore) Insert(_ context.Context, r orders.Reservation) error {
	for _, existing := range s.t.st.reservations {
		if existing.OrderID == r.OrderID && existing.UnitID == r.UnitID {
			return orders.InvalidArgument("reservation for order %s unit %s exists", r.OrderID, r.UnitID)
		}
	}
	s.t.st.reservations[r.ID] = r
	return nil
}

func (s reservationStore) ListByOrder(_ context.Context, orderID string, statuses ...orders.ReservationStatus) ([]orders.Reservation, error) {
	all := s.t.st.reservationsByOrder(orderID)
	if len(statuses) == 0 {
		return all, nil
	}
	out := all[:0]
	for _, r := range all {
		for _, st := range statuses {
			if r.Status == st {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (s reservationStore) SetStatus(_ context.Context, id string, to orders.ReservationStatus) error {
	r, ok := s.t.st.reservations[id]
	if !ok {
		return fmt.Errorf("reservation %s not found", id)
	}
	if r.Status != orders.ReservationActive {
		return fmt.Errorf("reservation %s is %s: %w", id, r.Status, orders.ErrReservationFinal)
	}
	r.Status = to
	r.UpdatedAt = s.t.now()
	s.t.st.reservations[id] = r
	return nil
}

func (s reservationStore) ListExpired(_ context.Context, now time.Time, limit int) ([]orders.Reservation, error) {
	var out []orders.Reservation
	for _, r := range s.t.st.reservations {
		if r.Expired(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
