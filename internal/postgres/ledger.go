package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type ledgerStore struct{ q pgx.Tx }

func (s ledgerStore) Append(ctx context.Context, e orders.LedgerEntry) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO stock_ledger (unit_id, change, reason, ref_id)
		VALUES ($1, $2, $3, $4)`, e.UnitID, e.Change, string(e.Reason), e.RefID)
	return err
}

func (s ledgerStore) ListByUnit(ctx context.Context, unitID string) ([]orders.LedgerEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, unit_id, change, reason, ref_id, created_at
		FROM stock_ledger WHERE unit_id = $1 ORDER BY id`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.LedgerEntry
	for rows.Next() {
		var e orders.LedgerEntry
		var reason string
		if err := rows.Scan(&e.ID, &e.UnitID, &e.Change, &reason, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reason = orders.LedgerReason(reason)
		out = append(out, e)
	}
	return out, rows.Err()
}
