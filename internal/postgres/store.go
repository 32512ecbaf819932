// Package postgres implements the order and inventory unit of work on pgx. Every
// transaction runs at REPEATABLE READ and locks the counter, order and reservation
// rows it mutates, so serialization failures and deadlocks surface as
// orders.ErrTxConflict for the caller to retry.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeCheckViolation       = "23514"
)

type Store struct {
	log  *zap.Logger
	pool *pgxpool.Pool
}

func NewStore(log *zap.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.Warn("commit failed", zap.Error(err))
		return classify(err)
	}
	return nil
}

// classify maps postgres failures onto the domain sentinels; everything else is
// returned unchanged.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", orders.ErrTxConflict, pgErr.Message)
	case codeCheckViolation:
		return fmt.Errorf("%w: %s", orders.ErrInconsistentState, pgErr.ConstraintName)
	}
	return err
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Counters() orders.CounterStore         { return counterStore{q: t.tx} }
func (t *pgTx) Reservations() orders.ReservationStore { return reservationStore{q: t.tx} }
func (t *pgTx) Ledger() orders.LedgerStore            { return ledgerStore{q: t.tx} }
func (t *pgTx) Orders() orders.OrderStore             { return orderStore{q: t.tx} }
func (t *pgTx) Outbox() orders.OutboxWriter           { return outboxWriter{q: t.tx} }
