package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/tracing"
)

type orderStore struct{ t *tx }

func (s orderStore) NextOrderNumber(_ context.Context, year int) (int64, error) {
	s.t.st.sequences[year]++
	return s.t.st.sequences[year], nil
}

func (s orderStore) Insert(_ context.Context, o *orders.Order) error {
	if _, ok := s.t.st.orders[o.ID]; ok {
		return orders.InvalidArgument("order %s exists", o.ID)
	}
	for _, existing := range s.t.st.orders {
		if existing.Number == o.Number {
			return orders.InvalidArgument("order number %s exists", o.Number)
		}
	}
	s.t.st.orders[o.ID] = o.Clone()
	return nil
}

func (s orderStore) Get(_ context.Context, id string) (*orders.Order, error) {
	o, ok := s.t.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, orders.ErrOrderNotFound)
	}
	return o.Clone(), nil
}

func (s orderStore) GetByPaymentIntent(_ context.Context, intentID string) (*orders.Order, error) {
	for _, o := range s.t.st.orders {
		if intentID != "" && o.PaymentIntentID == intentID {
			return o.Clone(), nil
		}
	}
	return nil, fmt.Errorf("intent %s: %w", intentID, orders.ErrOrderNotFound)
}

func (s orderStore) Save(_ context.Context, o *orders.Order) error {
	if _, ok := s.t.st.orders[o.ID]; !ok {
		return fmt.Errorf("order %s: %w", o.ID, orders.ErrOrderNotFound)
	}
	s.t.st.orders[o.ID] = o.Clone()
	return nil
}

func (s orderStore) List(_ context.Context, f orders.ListFilter) ([]*orders.Order, error) {
	f = f.Normalize()
	var all []*orders.Order
	for _, o := range s.t.st.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Number > all[j].Number
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if f.Offset >= len(all) {
		return []*orders.Order{}, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	out := make([]*orders.Order, 0, len(all))
	for _, o := range all {
		out = append(out, o.Clone())
	}
	return out, nil
}

type outboxWriter struct{ t *tx }

func (w outboxWriter) Enqueue(ctx context.Context, env orders.Envelope) error {
	env.TraceID = tracing.Traceparent(ctx)
	w.t.st.outbox = append(w.t.st.outbox, env)
	return nil
}
