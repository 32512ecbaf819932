// Package memstore keeps the whole inventory and order state in memory behind one
// mutex. Transactions run serially on a copy of the state that replaces the live
// state only when the callback succeeds, so a failed unit of work leaves nothing
// behind.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type Store struct {
	mu          sync.Mutex
	st          *state
	now         func() time.Time
	failCommits int

	deliveries   map[int64]*delivery
	outboxMaxTry int
}

func New() *Store {
	return &Store{st: newState(), now: time.Now, deliveries: map[int64]*delivery{}, outboxMaxTry: 10}
}

// WithClock replaces the clock used for updated_at columns.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// InjectConflicts makes the next n commits fail with orders.ErrTxConflict.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	s.failCommits = n
	s.mu.Unlock()
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	if s.failCommits > 0 {
		s.failCommits--
		return fmt.Errorf("memstore commit: %w", orders.ErrTxConflict)
	}
	s.st = work
	return nil
}

// Counter returns a committed counter, for assertions and read endpoints.
func (s *Store) Counter(unitID string) (orders.Counter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.counters[unitID]
	return c, ok
}

func (s *Store) LedgerFor(unitID string) []orders.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.LedgerEntry
	for _, e := range s.st.ledger {
		if e.UnitID == unitID {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) ReservationsFor(orderID string) []orders.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.reservationsByOrder(orderID)
}

func (s *Store) Order(id string) (*orders.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	return o.Clone(), ok
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

// Outbox returns every enqueued envelope in commit order.
func (s *Store) Outbox() []orders.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orders.Envelope(nil), s.st.outbox...)
}

type state struct {
	counters     map[string]orders.Counter
	reservations map[string]orders.Reservation
	orders       map[string]*orders.Order
	sequences    map[int]int64
	ledger       []orders.LedgerEntry
	outbox       []orders.Envelope
}

func newState() *state {
	return &state{
		counters:     map[string]orders.Counter{},
		reservations: map[string]orders.Reservation{},
		orders:       map[string]*orders.Order{},
		sequences:    map[int]int64{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.counters {
		c.counters[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	// Orders are copied on write by the order store.
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	c.ledger = append([]orders.LedgerEntry(nil), s.ledger...)
	c.outbox = append([]orders.Envelope(nil), s.outbox...)
	return c
}

func (s *state) reservationsByOrder(orderID string) []orders.Reservation {
	var out []orders.Reservation
	for _, r := range s.reservations {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) Counters() orders.CounterStore         { return counterStore{t} }
func (t *tx) Reservations() orders.ReservationStore { return reservationStore{t} }
func (t *tx) Ledger() orders.LedgerStore            { return ledgerStore{t} }
func (t *tx) Orders() orders.OrderStore             { return orderStore{t} }
func (t *tx) Outbox() orders.OutboxWriter           { return outboxWriter{t} }
