package kafka

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/tracing"
)

// Handler returns nil only when the message was processed and its offset may be
// committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	log      *zap.Logger
	r        reader
	workers  int
	attempts uint64
	backoff  time.Duration
}

func NewConsumer(log *zap.Logger, brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit explicitly after the handler succeeds
	})
	return newConsumer(log, r, workers)
}

func newConsumer(log *zap.Logger, r reader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{log: log, r: r, workers: workers, attempts: 3, backoff: 200 * time.Millisecond}
}

// Start fetches until ctx ends. Messages with the same key go to the same worker,
// so one order's events are handled in partition order. A message whose handler
// keeps failing is logged and committed so it cannot block the partition.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				c.handle(ctx, h, m)
			}
		}(jobs[i])
	}
	stop := func() {
		for _, ch := range jobs {
			close(ch)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case jobs[c.slot(m.Key)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func (c *Consumer) slot(key []byte) int {
	if c.workers == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(c.workers))
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	mctx := tracing.ExtractKafkaHeaders(ctx, m.Headers)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.backoff), c.attempts-1), ctx)

	err := backoff.Retry(func() error { return h(mctx, m) }, policy)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Error("message dropped after retries",
			zap.String("topic", m.Topic), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}
