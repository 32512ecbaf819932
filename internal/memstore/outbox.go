package memstore

import (
	"context"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/outbox"
)

// delivery tracks relay progress for one committed envelope. It lives outside
// the transactional state, like the relay columns of the outbox table.
type delivery struct {
	status     outbox.Status
	relayID    string
	leaseUntil time.Time
	retries    int
	lastErr    string
}

// WithOutboxRetries caps how often a failed envelope is handed out again.
func (s *Store) WithOutboxRetries(n int) *Store {
	s.outboxMaxTry = n
	return s
}

// LockBatch leases committed envelopes to relayID. Event ids are 1-based commit
// positions.
func (s *Store) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	var out []outbox.Event
	for i, env := range s.st.outbox {
		if len(out) >= batchSize {
			break
		}
		id := int64(i + 1)
		d, ok := s.deliveries[id]
		if !ok {
			d = &delivery{status: outbox.StatusPending}
			s.deliveries[id] = d
		}
		switch {
		case d.status == outbox.StatusPending:
		case d.status == outbox.StatusInProgress && d.leaseUntil.Before(now):
		case d.status == outbox.StatusFailed && d.retries < s.outboxMaxTry:
		default:
			continue
		}
		e, err := outbox.FromEnvelope(env)
		if err != nil {
			return nil, err
		}
		d.status = outbox.StatusInProgress
		d.relayID = relayID
		d.leaseUntil = now.Add(lease)
		e.ID = id
		e.Status = d.status
		e.RelayID = relayID
		e.RetryCount = d.retries
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if d, ok := s.deliveries[id]; ok {
			d.status = outbox.StatusSent
			d.lastErr = ""
		}
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.deliveries[id]; ok {
		d.status = outbox.StatusFailed
		d.lastErr = errMsg
		d.retries++
	}
	return nil
}

func (s *Store) ExtendLease(_ context.Context, relayID string, ids []int64, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	until := s.now().Add(lease)
	for _, id := range ids {
		if d, ok := s.deliveries[id]; ok && d.relayID == relayID {
			d.leaseUntil = until
		}
	}
	return nil
}

// DeliveryStatus reports the relay state of the envelope at 1-based position id.
func (s *Store) DeliveryStatus(id int64) outbox.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.deliveries[id]; ok {
		return d.status
	}
	return outbox.StatusPending
}
