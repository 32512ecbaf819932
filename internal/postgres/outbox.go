package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/outbox"
	"github.com/ariefcatur/go-order-fulfillment/internal/tracing"
)

type outboxWriter struct{ q pgx.Tx }

// Enqueue stores env in the same transaction as the state change it describes.
func (w outboxWriter) Enqueue(ctx context.Context, env orders.Envelope) error {
	env.TraceID = tracing.Traceparent(ctx)
	e, err := outbox.FromEnvelope(env)
	if err != nil {
		return err
	}
	headers, err := json.Marshal(e.Headers)
	if err != nil {
		return err
	}
	_, err = w.q.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, topic, type, payload, headers, traceparent, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')`,
		e.AggregateType, e.AggregateID, e.Topic, e.Type, e.Payload, headers, e.Traceparent)
	return err
}

// OutboxStore leases outbox rows to relays.
type OutboxStore struct {
	log        *zap.Logger
	pool       *pgxpool.Pool
	maxRetries int
}

func NewOutboxStore(log *zap.Logger, pool *pgxpool.Pool, maxRetries int) *OutboxStore {
	return &OutboxStore{log: log, pool: pool, maxRetries: maxRetries}
}

// LockBatch claims pending rows, rows whose lease ran out, and failed rows still
// under the retry limit.
func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, topic, type, payload, headers, traceparent, created_at, retry_count
		FROM outbox
		WHERE status = 'pending'
		   OR (status = 'in_progress' AND lease_until < now())
		   OR (status = 'failed' AND retry_count < $2)
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1`, batchSize, s.maxRetries)
	if err != nil {
		return nil, err
	}

	var events []outbox.Event
	for rows.Next() {
		var e outbox.Event
		var headers []byte
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Topic, &e.Type, &e.Payload, &headers, &e.Traceparent, &e.CreatedAt, &e.RetryCount); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal(headers, &e.Headers); err != nil {
			s.log.Warn("outbox headers unreadable", zap.Int64("id", e.ID), zap.Error(err))
		}
		e.Status = outbox.StatusInProgress
		e.RelayID = relayID
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE outbox SET status = 'in_progress', relay_id = $1, lease_until = now() + make_interval(secs => $2)
		WHERE id = ANY($3)`, relayID, lease.Seconds(), ids); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE outbox SET status = 'sent', last_error = NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("no outbox rows updated")
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET status = 'failed', last_error = $2, retry_count = retry_count + 1
		WHERE id = $1`, id, errMsg)
	return err
}

func (s *OutboxStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET lease_until = now() + make_interval(secs => $1)
		WHERE id = ANY($2) AND relay_id = $3`, lease.Seconds(), ids, relayID)
	return err
}
