package orders

import (
	"context"
	"time"
)

// Runner opens a unit of work. Every store reached through tx commits or aborts
// together; a transient storage conflict surfaces as ErrTxConflict.
type Runner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Counters() CounterStore
	Reservations() ReservationStore
	Ledger() LedgerStore
	Orders() OrderStore
	Outbox() OutboxWriter
}

type CounterStore interface {
	// EnsureExists creates a zeroed counter when absent.
	EnsureExists(ctx context.Context, unitID string) error
	// Get reads the counter and holds it for the rest of the transaction.
	Get(ctx context.Context, unitID string) (Counter, error)
	AdjustReserved(ctx context.Context, unitID string, delta int64) error
	CommitOut(ctx context.Context, unitID string, qty int64) error
	RestoreOnHand(ctx context.Context, unitID string, qty int64) error
	SetSafetyStock(ctx context.Context, unitID string, qty int64) error
}

type ReservationStore interface {
	Insert(ctx context.Context, r Reservation) error
	ListByOrder(ctx context.Context, orderID string, statuses ...ReservationStatus) ([]Reservation, error)
	// SetStatus moves an ACTIVE reservation to a final status.
	SetStatus(ctx context.Context, id string, to ReservationStatus) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
}

type LedgerStore interface {
	Append(ctx context.Context, e LedgerEntry) error
	ListByUnit(ctx context.Context, unitID string) ([]LedgerEntry, error)
}

type OrderStore interface {
	NextOrderNumber(ctx context.Context, year int) (int64, error)
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (*Order, error)
	// Save persists scalar fields and any history entries not yet stored.
	Save(ctx context.Context, o *Order) error
	List(ctx context.Context, f ListFilter) ([]*Order, error)
}

type OutboxWriter interface {
	Enqueue(ctx context.Context, env Envelope) error
}

// Availability is the result of checkAvailability.
type Availability struct {
	Available bool  `json:"available"`
	Shortfall int64 `json:"shortfall,omitempty"`
}

// CheckAvailability reports whether unitID can cover qty above its safety floor.
func CheckAvailability(ctx context.Context, counters CounterStore, unitID string, qty int64) (Availability, Counter, error) {
	c, err := counters.Get(ctx, unitID)
	if err != nil {
		return Availability{}, Counter{}, err
	}
	avail := c.Available()
	if avail >= qty {
		return Availability{Available: true}, c, nil
	}
	return Availability{Available: false, Shortfall: qty - avail}, c, nil
}
