package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	// OnRetry, when set, observes each conflict before the next attempt.
	OnRetry func(err error, wait time.Duration)
}

func DefaultPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Initial: 20 * time.Millisecond, Max: 500 * time.Millisecond}
}

// OnConflict runs op until it succeeds, fails with something other than
// orders.ErrTxConflict, or MaxAttempts is spent. The last conflict is returned in
// the latter case.
func OnConflict(ctx context.Context, p Policy, op func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		eb.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		eb.MaxInterval = p.Max
	}
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)
	notify := func(err error, d time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(err, d)
		}
	}
	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || errors.Is(err, orders.ErrTxConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, b, notify)
}
