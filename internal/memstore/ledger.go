package memstore

import (
	"context"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type ledgerStore struct{ t *tx }

func (s ledgerStore) Append(_ context.Context, e orders.LedgerEntry) error {
	e.ID = int64(len(s.t.st.ledger) + 1)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.t.now()
	}
	s.t.st.ledger = append(s.t.st.ledger, e)
	return nil
}

func (s ledgerStore) ListByUnit(_ context.Context, unitID string) ([]orders.LedgerEntry, error) {
	var out []orders.LedgerEntry
	for _, e := range s.t.st.ledger {
		if e.UnitID == unitID {
			out = append(out, e)
		}
	}
	return out, nil
}
